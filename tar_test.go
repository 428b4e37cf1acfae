package archivefs

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func checkScenario(t *testing.T, fsys *Filesystem) {
	t.Helper()

	for _, tc := range []struct {
		dir    string
		expect []string
	}{
		{dir: "/", expect: []string{".", "..", "config.txt", "data"}},
		{dir: "/data", expect: []string{".", "..", "sub"}},
		{dir: "/data/sub", expect: []string{".", "..", "a.bin"}},
	} {
		names, err := fsys.Readdir(tc.dir)
		require.NoError(t, err)
		require.Equal(t, tc.expect, names)
	}

	data, err := fsys.ReadFile("/config.txt", 0, 100)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world!"), data)

	data, err = fsys.ReadFile("/data/sub/a.bin", 2, 10)
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4}, data)
}

func TestTarLoad(t *testing.T) {
	data := buildTar(t, scenarioFiles)

	reader, err := Tar{}.Load(context.Background(), sectionOf(data))
	require.NoError(t, err)

	entries := reader.Entries()
	require.Len(t, entries, 2)
	for i, f := range scenarioFiles {
		require.Equal(t, f.Name, entries[i].Name)
		require.Equal(t, int64(len(f.Data)), entries[i].DataSize)
		require.True(t, entries[i].Timestamp.Equal(testTimestamp))
		require.NotNil(t, entries[i].section, "plain tar members are read in place")

		buf := make([]byte, 64)
		n, err := reader.ReadAt(entries[i], buf, 0)
		require.NoError(t, err)
		require.Equal(t, f.Data, buf[:n])
	}
}

func TestTarSkipsNonRegular(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: "empty/", Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeSymlink, Name: "link", Linkname: "file", Mode: 0o777}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "file", Size: 3, Mode: 0o644}))
	_, err := tw.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	reader, err := Tar{}.Load(context.Background(), sectionOf(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, reader.Entries(), 1)
	require.Equal(t, "file", reader.Entries()[0].Name)
}

func TestTarGz(t *testing.T) {
	compressed := compress(t, func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriter(w), nil },
		buildTar(t, scenarioFiles))
	path := writeTemp(t, "scenario.tar.gz", compressed)

	fsys, err := Open(context.Background(), path, OpenOptions{Clock: testClock})
	require.NoError(t, err)
	defer fsys.Close()

	require.Equal(t, ".tar.gz", fsys.Format.Extension())
	checkScenario(t, fsys)
}

func TestTarSz(t *testing.T) {
	compressed := compress(t, func(w io.Writer) (io.WriteCloser, error) { return snappy.NewBufferedWriter(w), nil },
		buildTar(t, scenarioFiles))

	// identified by stream alone
	path := writeTemp(t, "scenario", compressed)
	fsys, err := Open(context.Background(), path, OpenOptions{Clock: testClock})
	require.NoError(t, err)
	defer fsys.Close()

	require.Equal(t, ".tar.sz", fsys.Format.Extension())
	checkScenario(t, fsys)
}

func TestOpenTar(t *testing.T) {
	path := writeTemp(t, "scenario.tar", buildTar(t, scenarioFiles))

	fsys, err := Open(context.Background(), path, OpenOptions{Clock: testClock})
	require.NoError(t, err)
	defer fsys.Close()

	require.IsType(t, Tar{}, fsys.Format)
	checkScenario(t, fsys)
}

func TestTarCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Tar{}.Load(ctx, sectionOf(buildTar(t, scenarioFiles)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestTarContinueOnError(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xab}, 1024)

	// a second header the reader cannot parse
	corrupt := buildTar(t, scenarioFiles)
	corrupt[1024] ^= 0xff

	for _, tc := range []struct {
		name   string
		data   []byte
		expect []string
	}{
		{name: "garbage", data: garbage},
		{name: "corrupt second header", data: corrupt, expect: []string{scenarioFiles[0].Name}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := Tar{}.Load(ctx, sectionOf(tc.data))
			require.ErrorIs(t, err, tar.ErrHeader)

			reader, err := Tar{ContinueOnError: true}.Load(ctx, sectionOf(tc.data))
			require.NoError(t, err)
			require.NoError(t, ctx.Err(), "load must stop at the bad header")

			var names []string
			for _, e := range reader.Entries() {
				names = append(names, e.Name)
			}
			require.Equal(t, tc.expect, names)
		})
	}
}

func TestOpenTarContinueOnError(t *testing.T) {
	corrupt := buildTar(t, scenarioFiles)
	corrupt[1024] ^= 0xff
	path := writeTemp(t, "partial.tar", corrupt)

	_, err := Open(context.Background(), path, OpenOptions{Format: Tar{}})
	require.Error(t, err)

	fsys, err := Open(context.Background(), path, OpenOptions{Format: Tar{}, ContinueOnError: true, Clock: testClock})
	require.NoError(t, err)
	defer fsys.Close()

	data, err := fsys.ReadFile("/config.txt", 0, 100)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world!"), data)
	_, err = fsys.Getattr("/data/sub/a.bin")
	require.Error(t, err)
}

func TestRarContinueOnErrorTerminates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = Rar{ContinueOnError: true}.Load(ctx, sectionOf(bytes.Repeat([]byte{0xab}, 1024)))
	require.NoError(t, ctx.Err(), "load must not retry a bad header")
}
