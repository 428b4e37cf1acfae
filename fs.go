package archivefs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// FS allows accessing a loaded archive with the io/fs interfaces. It reads
// through the same Dispatcher a mount does, so what a program sees through
// FS is what it would see under the mountpoint.
//
// Directory files list their entries in archive order; ReadDir sorts them
// by name, as fs.ReadDirFS requires.
type FS struct {
	d *Dispatcher
}

// NewFS returns an io/fs view of d.
func NewFS(d *Dispatcher) *FS { return &FS{d: d} }

// Open opens the named file or directory. If name is "." the root of the
// archive is opened.
func (f *FS) Open(name string) (fs.File, error) {
	if err := f.checkName(name, "open"); err != nil {
		return nil, err
	}
	attr, err := f.d.Getattr(name)
	if err != nil {
		return nil, asPathError(err, "open", name)
	}
	info := fileInfo{name: path.Base(name), attr: attr}

	if attr.IsDir() {
		entries, err := f.dirEntries(name)
		if err != nil {
			return nil, err
		}
		return &dirFile{info: info, entries: entries}, nil
	}
	return &entryFile{d: f.d, path: name, info: info}, nil
}

// Stat returns info about the named file.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	if err := f.checkName(name, "stat"); err != nil {
		return nil, err
	}
	attr, err := f.d.Getattr(name)
	if err != nil {
		return nil, asPathError(err, "stat", name)
	}
	return fileInfo{name: path.Base(name), attr: attr}, nil
}

// ReadDir reads the named directory, returning its entries sorted by name.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := f.checkName(name, "readdir"); err != nil {
		return nil, err
	}
	entries, err := f.dirEntries(name)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// Sub returns an FS corresponding to the subtree rooted at dir.
func (f *FS) Sub(dir string) (fs.FS, error) {
	if err := f.checkName(dir, "sub"); err != nil {
		return nil, err
	}
	info, err := f.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	if dir == "." {
		return f, nil
	}
	return &subFS{FS: f, dir: dir}, nil
}

func (f *FS) dirEntries(name string) ([]fs.DirEntry, error) {
	children, err := f.d.ReadDirEntries(name)
	if err != nil {
		return nil, asPathError(err, "readdir", name)
	}
	entries := make([]fs.DirEntry, len(children))
	for i, c := range children {
		entries[i] = fs.FileInfoToDirEntry(fileInfo{name: c.Name, attr: c.Attr})
	}
	return entries, nil
}

// checkName returns an error if name is not a valid path according to the
// docs of the io/fs package. Backslashes are rejected too: they separate
// segments in archive names, so no node can have one in its name.
func (f *FS) checkName(name, op string) error {
	if !fs.ValidPath(name) || strings.Contains(name, `\`) {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return nil
}

// asPathError relabels a dispatcher error with the io/fs operation and name.
func asPathError(err error, op, name string) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return &fs.PathError{Op: op, Path: name, Err: pe.Err}
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}

// subFS is the FS of a subtree, addressing it by names relative to dir.
type subFS struct {
	*FS
	dir string
}

func (s *subFS) full(name, op string) (string, error) {
	if err := s.checkName(name, op); err != nil {
		return "", err
	}
	return path.Join(s.dir, name), nil
}

func (s *subFS) Open(name string) (fs.File, error) {
	full, err := s.full(name, "open")
	if err != nil {
		return nil, err
	}
	file, err := s.FS.Open(full)
	return file, relabel(err, name)
}

func (s *subFS) Stat(name string) (fs.FileInfo, error) {
	full, err := s.full(name, "stat")
	if err != nil {
		return nil, err
	}
	info, err := s.FS.Stat(full)
	if err != nil {
		return nil, relabel(err, name)
	}
	if name == "." {
		return fileInfo{name: ".", attr: info.(fileInfo).attr}, nil
	}
	return info, nil
}

func (s *subFS) ReadDir(name string) ([]fs.DirEntry, error) {
	full, err := s.full(name, "readdir")
	if err != nil {
		return nil, err
	}
	entries, err := s.FS.ReadDir(full)
	return entries, relabel(err, name)
}

func (s *subFS) Sub(dir string) (fs.FS, error) {
	full, err := s.full(dir, "sub")
	if err != nil {
		return nil, err
	}
	return s.FS.Sub(full)
}

func relabel(err error, name string) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return &fs.PathError{Op: pe.Op, Path: name, Err: pe.Err}
	}
	return err
}

// fileInfo describes a tree node. Sys returns its Attr.
type fileInfo struct {
	name string
	attr Attr
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.attr.Size }
func (fi fileInfo) Mode() fs.FileMode  { return fi.attr.Mode }
func (fi fileInfo) ModTime() time.Time { return fi.attr.Mtime }
func (fi fileInfo) IsDir() bool        { return fi.attr.IsDir() }
func (fi fileInfo) Sys() any           { return fi.attr }

// dirFile implements the fs.ReadDirFile interface.
type dirFile struct {
	info        fileInfo
	entries     []fs.DirEntry
	entriesRead int
}

func (df *dirFile) Stat() (fs.FileInfo, error) { return df.info, nil }

func (df *dirFile) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: df.info.name, Err: ErrIsDir}
}

func (df *dirFile) Close() error { return nil }

func (df *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	remaining := df.entries[df.entriesRead:]
	if n <= 0 {
		df.entriesRead = len(df.entries)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	df.entriesRead += n
	return remaining[:n], nil
}

// entryFile is an open regular file. Reads go straight to the archive.
type entryFile struct {
	d      *Dispatcher
	path   string
	info   fileInfo
	offset int64
}

func (ef *entryFile) Stat() (fs.FileInfo, error) { return ef.info, nil }

func (ef *entryFile) Close() error { return nil }

func (ef *entryFile) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if ef.offset >= ef.info.Size() {
		return 0, io.EOF
	}
	n, err := ef.d.Read(ef.path, p, ef.offset)
	ef.offset += int64(n)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt follows io.ReaderAt: a short read comes with io.EOF.
func (ef *entryFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &fs.PathError{Op: "readat", Path: ef.path, Err: fs.ErrInvalid}
	}
	n, err := ef.d.Read(ef.path, p, off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (ef *entryFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += ef.offset
	case io.SeekEnd:
		offset += ef.info.Size()
	default:
		return 0, &fs.PathError{Op: "seek", Path: ef.path, Err: fs.ErrInvalid}
	}
	if offset < 0 {
		return 0, &fs.PathError{Op: "seek", Path: ef.path, Err: fs.ErrInvalid}
	}
	ef.offset = offset
	return offset, nil
}

// Interface guards
var (
	_ fs.ReadDirFS = (*FS)(nil)
	_ fs.StatFS    = (*FS)(nil)
	_ fs.SubFS     = (*FS)(nil)

	_ fs.ReadDirFile = (*dirFile)(nil)
	_ io.ReaderAt    = (*entryFile)(nil)
	_ io.Seeker      = (*entryFile)(nil)
)
