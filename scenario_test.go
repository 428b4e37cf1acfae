package archivefs

import (
	"context"
	"io"
	"io/fs"
	"os"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

type scenario struct {
	Name    string              `yaml:"name"`
	Files   []scenarioFile      `yaml:"files"`
	Readdir map[string][]string `yaml:"readdir"`
	Reads   []scenarioRead      `yaml:"reads"`
	Errors  []scenarioError     `yaml:"errors"`
}

type scenarioFile struct {
	Name    string `yaml:"name"`
	Content string `yaml:"content"`
	Bytes   []int  `yaml:"bytes"`
}

func (f scenarioFile) data() []byte { return fixtureBytes(f.Content, f.Bytes) }

// fixtureBytes returns bytes if set, content otherwise.
func fixtureBytes(content string, bytes []int) []byte {
	if bytes == nil {
		return []byte(content)
	}
	out := make([]byte, len(bytes))
	for i, b := range bytes {
		out[i] = byte(b)
	}
	return out
}

type scenarioRead struct {
	Path    string `yaml:"path"`
	Offset  int64  `yaml:"offset"`
	Length  int    `yaml:"length"`
	Content string `yaml:"content"`
	Bytes   []int  `yaml:"bytes"`
}

type scenarioError struct {
	Path string `yaml:"path"`
	Op   string `yaml:"op"`
	Err  string `yaml:"err"`
}

var scenarioErrors = map[string]error{
	"notexist": fs.ErrNotExist,
	"notdir":   ErrNotDir,
	"isdir":    ErrIsDir,
}

func loadScenarios(t *testing.T) []scenario {
	t.Helper()
	data, err := os.ReadFile("testdata/scenarios.yaml")
	require.NoError(t, err)
	var scenarios []scenario
	require.NoError(t, yaml.Unmarshal(data, &scenarios))
	require.NotEmpty(t, scenarios)
	return scenarios
}

// scenarioContainers write the files of a scenario as a container file
// and return its name.
var scenarioContainers = map[string]func(t *testing.T, files []testFile) (string, []byte){
	"pbo": func(t *testing.T, files []testFile) (string, []byte) {
		return "scenario.pbo", buildPBO(t, pboSpec{Properties: []Property{{Key: "prefix", Value: "scenario"}}, Files: files})
	},
	"pbo-compressed": func(t *testing.T, files []testFile) (string, []byte) {
		return "scenario.pbo", buildPBO(t, pboSpec{Files: files, Compress: true, Trailer: true})
	},
	"tar": func(t *testing.T, files []testFile) (string, []byte) {
		return "scenario.tar", buildTar(t, files)
	},
	"tar.gz": func(t *testing.T, files []testFile) (string, []byte) {
		return "scenario.tar.gz", compress(t, func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil }, buildTar(t, files))
	},
}

func TestScenarios(t *testing.T) {
	for _, sc := range loadScenarios(t) {
		files := make([]testFile, len(sc.Files))
		for i, f := range sc.Files {
			files[i] = testFile{Name: f.Name, Data: f.data()}
		}

		for kind, build := range scenarioContainers {
			t.Run(sc.Name+"/"+kind, func(t *testing.T) {
				name, data := build(t, files)
				fsys, err := Open(context.Background(), writeTemp(t, name, data),
					OpenOptions{Clock: testClock, VerifyChecksum: true})
				require.NoError(t, err)
				defer fsys.Close()

				runScenario(t, fsys.Dispatcher, sc)
			})
		}
	}
}

func runScenario(t *testing.T, d *Dispatcher, sc scenario) {
	t.Helper()

	for dir, children := range sc.Readdir {
		names, err := d.Readdir(dir)
		require.NoError(t, err, dir)
		require.Equal(t, append([]string{".", ".."}, children...), names, dir)
	}

	for _, r := range sc.Reads {
		want := fixtureBytes(r.Content, r.Bytes)
		data, err := d.ReadFile(r.Path, r.Offset, r.Length)
		require.NoError(t, err, r.Path)
		require.Equal(t, want, data, "%s at %d", r.Path, r.Offset)
	}

	for _, e := range sc.Errors {
		var err error
		switch e.Op {
		case "getattr":
			_, err = d.Getattr(e.Path)
		case "readdir":
			_, err = d.Readdir(e.Path)
		case "read":
			_, err = d.ReadFile(e.Path, 0, 1)
		default:
			t.Fatalf("unknown op %q", e.Op)
		}
		require.ErrorIs(t, err, scenarioErrors[e.Err], "%s %s", e.Op, e.Path)
	}
}
