package archivefs

import (
	"archive/tar"
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/STARRY-S/zip"
	"github.com/stretchr/testify/require"
)

// testTimestamp is the timestamp of every entry the helpers write.
var testTimestamp = time.Unix(1735689600, 0) // 2025-01-01T00:00:00Z

// testClock is the builder clock of every tree built in tests.
func testClock() time.Time { return time.Unix(1700000000, 0) }

type testFile struct {
	Name string
	Data []byte
}

// scenarioFiles is the two-entry archive used throughout the tests.
var scenarioFiles = []testFile{
	{Name: "config.txt", Data: []byte("hello world!")},
	{Name: `data\sub\a.bin`, Data: []byte{1, 2, 3, 4}},
}

// memEntries returns an in-memory ArchiveReader holding files.
func memEntries(files ...testFile) entryList {
	entries := make(entryList, len(files))
	for i, f := range files {
		entries[i] = &Entry{
			Name:      f.Name,
			DataSize:  int64(len(f.Data)),
			Timestamp: testTimestamp,
			section:   io.NewSectionReader(bytes.NewReader(f.Data), 0, int64(len(f.Data))),
		}
	}
	return entries
}

func newTestDispatcher(t *testing.T, files ...testFile) *Dispatcher {
	t.Helper()
	entries := memEntries(files...)
	tree, err := BuildTree(entries, testClock)
	require.NoError(t, err)
	return NewDispatcher(tree, entries)
}

// pboSpec describes a PBO to be written by buildPBO.
type pboSpec struct {
	Properties []Property
	Files      []testFile

	// Compress LZSS-packs every payload.
	Compress bool

	// Trailer appends the SHA-1 trailer.
	Trailer bool
}

func buildPBO(t *testing.T, spec pboSpec) []byte {
	t.Helper()
	var buf bytes.Buffer

	writeRecord := func(name string, rec pboRecord) {
		buf.WriteString(name)
		buf.WriteByte(0)
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, rec))
	}

	if spec.Properties != nil {
		writeRecord("", pboRecord{Method: pboMethodVers})
		for _, prop := range spec.Properties {
			buf.WriteString(prop.Key)
			buf.WriteByte(0)
			buf.WriteString(prop.Value)
			buf.WriteByte(0)
		}
		buf.WriteByte(0)
	}

	payloads := make([][]byte, len(spec.Files))
	for i, f := range spec.Files {
		rec := pboRecord{
			Timestamp:    uint32(testTimestamp.Unix()),
			OriginalSize: 0,
			DataSize:     uint32(len(f.Data)),
		}
		payloads[i] = f.Data
		if spec.Compress {
			payloads[i] = compressLZSSLiterals(f.Data)
			rec.Method = pboMethodCprs
			rec.OriginalSize = uint32(len(f.Data))
			rec.DataSize = uint32(len(payloads[i]))
		}
		writeRecord(f.Name, rec)
	}
	writeRecord("", pboRecord{})

	for _, p := range payloads {
		buf.Write(p)
	}

	if spec.Trailer {
		sum := sha1.Sum(buf.Bytes())
		buf.WriteByte(0)
		buf.Write(sum[:])
	}
	return buf.Bytes()
}

// compressLZSSLiterals encodes data as an LZSS stream made only of
// literals, followed by its checksum.
func compressLZSSLiterals(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); i += 8 {
		end := i + 8
		if end > len(data) {
			end = len(data)
		}
		out = append(out, 0xFF)
		out = append(out, data[i:end]...)
	}
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return binary.LittleEndian.AppendUint32(out, sum)
}

func buildTar(t *testing.T, files []testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     filepath.ToSlash(f.Name),
			Mode:     0o644,
			Size:     int64(len(f.Data)),
			ModTime:  testTimestamp,
		}))
		_, err := tw.Write(f.Data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func buildZip(t *testing.T, method uint16, files []testFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   method,
			Modified: testTimestamp,
		})
		require.NoError(t, err)
		_, err = w.Write(f.Data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeTemp writes data to a file named name in a fresh temporary
// directory and returns its path.
func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func sectionOf(data []byte) *io.SectionReader {
	return io.NewSectionReader(bytes.NewReader(data), 0, int64(len(data)))
}
