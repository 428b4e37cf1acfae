package archivefs

import (
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	return NewFS(newTestDispatcher(t, scenarioFiles...))
}

func TestFSConformance(t *testing.T) {
	if err := fstest.TestFS(newTestFS(t), "config.txt", "data", "data/sub", "data/sub/a.bin"); err != nil {
		t.Fatal(err)
	}
}

func TestFSReadFile(t *testing.T) {
	fsys := newTestFS(t)

	data, err := fs.ReadFile(fsys, "config.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello world!"), data)

	data, err = fs.ReadFile(fsys, "data/sub/a.bin")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, data)

	_, err = fs.ReadFile(fsys, "data")
	require.ErrorIs(t, err, ErrIsDir)
}

func TestFSInvalidNames(t *testing.T) {
	fsys := newTestFS(t)

	for _, name := range []string{"/config.txt", "data/", `data\sub`, "../x", ""} {
		_, err := fsys.Open(name)
		require.ErrorIs(t, err, fs.ErrInvalid, name)
	}
}

func TestFSErrors(t *testing.T) {
	fsys := newTestFS(t)

	_, err := fsys.Stat("missing")
	require.ErrorIs(t, err, fs.ErrNotExist)
	var pe *fs.PathError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "stat", pe.Op)
	require.Equal(t, "missing", pe.Path)

	_, err = fsys.ReadDir("config.txt")
	require.ErrorIs(t, err, ErrNotDir)

	_, err = fsys.Open("config.txt/x")
	require.ErrorIs(t, err, ErrNotDir)
}

func TestFSDirPaging(t *testing.T) {
	fsys := NewFS(newTestDispatcher(t,
		testFile{Name: "c"}, testFile{Name: "a"}, testFile{Name: "b"},
	))

	f, err := fsys.Open(".")
	require.NoError(t, err)
	defer f.Close()
	dir := f.(fs.ReadDirFile)

	// archive order, not sorted
	entries, err := dir.ReadDir(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c", entries[0].Name())
	require.Equal(t, "a", entries[1].Name())

	entries, err = dir.ReadDir(2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Name())

	entries, err = dir.ReadDir(2)
	require.ErrorIs(t, err, io.EOF)
	require.Empty(t, entries)

	entries, err = dir.ReadDir(-1)
	require.NoError(t, err)
	require.Empty(t, entries)

	sorted, err := fsys.ReadDir(".")
	require.NoError(t, err)
	require.Equal(t, "a", sorted[0].Name())
	require.Equal(t, "c", sorted[2].Name())
}

func TestFSSub(t *testing.T) {
	fsys := newTestFS(t)

	sub, err := fs.Sub(fsys, "data")
	require.NoError(t, err)

	data, err := fs.ReadFile(sub, "sub/a.bin")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, data)

	_, err = fs.Stat(sub, "config.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.True(t, errors.As(err, new(*fs.PathError)))

	if err := fstest.TestFS(sub, "sub", "sub/a.bin"); err != nil {
		t.Fatal(err)
	}

	_, err = fs.Sub(fsys, "config.txt")
	require.Error(t, err)

	same, err := fs.Sub(fsys, ".")
	require.NoError(t, err)
	require.Same(t, fsys, same)
}

func TestFSStatSys(t *testing.T) {
	info, err := newTestFS(t).Stat("data/sub/a.bin")
	require.NoError(t, err)
	require.Equal(t, "a.bin", info.Name())
	require.Equal(t, int64(4), info.Size())
	require.Equal(t, fs.FileMode(0o444), info.Mode())
	require.True(t, info.ModTime().Equal(testTimestamp))

	attr, ok := info.Sys().(Attr)
	require.True(t, ok)
	require.Equal(t, uint32(2), attr.Nlink)
}

func TestFSSeek(t *testing.T) {
	f, err := newTestFS(t).Open("config.txt")
	require.NoError(t, err)
	defer f.Close()
	rs := f.(io.ReadSeeker)

	pos, err := rs.Seek(-6, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	rest, err := io.ReadAll(rs)
	require.NoError(t, err)
	require.Equal(t, "world!", string(rest))

	_, err = rs.Seek(-1, io.SeekStart)
	require.ErrorIs(t, err, fs.ErrInvalid)
}
