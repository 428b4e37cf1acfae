package archivefs

import (
	"io/fs"

	"github.com/rs/zerolog/log"
)

// DirEntry is one child of a directory together with its attributes.
type DirEntry struct {
	Name string
	Attr Attr
}

// Dispatcher answers the read-only filesystem queries against a Tree and
// the ArchiveReader its entries came from. It keeps no per-call state, so
// it can serve any number of concurrent callers.
//
// Paths are query paths: both slashes and backslashes separate segments,
// redundant separators are ignored, and "", "/" and "." all name the root.
// Errors are *fs.PathError values whose Err is fs.ErrNotExist, ErrNotDir,
// ErrIsDir or fs.ErrInvalid, or whatever the ArchiveReader failed with.
type Dispatcher struct {
	tree   *Tree
	reader ArchiveReader
}

// NewDispatcher returns a dispatcher serving tree, reading file contents
// from reader.
func NewDispatcher(tree *Tree, reader ArchiveReader) *Dispatcher {
	return &Dispatcher{tree: tree, reader: reader}
}

// Tree returns the tree the dispatcher serves.
func (d *Dispatcher) Tree() *Tree { return d.tree }

func (d *Dispatcher) resolve(op, name string) (NodeID, error) {
	segments := SplitPath(name)
	if len(segments) == 1 && segments[0] == "." {
		segments = nil
	}
	id, err := d.tree.Resolve(segments)
	if err != nil {
		return 0, &fs.PathError{Op: op, Path: name, Err: err}
	}
	return id, nil
}

// Getattr returns the attributes of the node at name.
func (d *Dispatcher) Getattr(name string) (Attr, error) {
	id, err := d.resolve("getattr", name)
	if err != nil {
		return Attr{}, err
	}
	return d.tree.Attr(id), nil
}

// Readdir lists the directory at name: ".", "..", then the names of its
// children in the order the archive first mentioned them.
func (d *Dispatcher) Readdir(name string) ([]string, error) {
	id, err := d.dir("readdir", name)
	if err != nil {
		return nil, err
	}
	children := d.tree.Children(id)
	names := make([]string, 0, len(children)+2)
	names = append(names, ".", "..")
	for _, c := range children {
		names = append(names, d.tree.Name(c))
	}
	return names, nil
}

// ReadDirEntries returns the children of the directory at name with their
// attributes, in insertion order. Unlike Readdir it leaves out "." and "..".
func (d *Dispatcher) ReadDirEntries(name string) ([]DirEntry, error) {
	id, err := d.dir("readdir", name)
	if err != nil {
		return nil, err
	}
	children := d.tree.Children(id)
	entries := make([]DirEntry, len(children))
	for i, c := range children {
		entries[i] = DirEntry{Name: d.tree.Name(c), Attr: d.tree.Attr(c)}
	}
	return entries, nil
}

func (d *Dispatcher) dir(op, name string) (NodeID, error) {
	id, err := d.resolve(op, name)
	if err != nil {
		return 0, err
	}
	if d.tree.Kind(id) != KindDir {
		return 0, &fs.PathError{Op: op, Path: name, Err: ErrNotDir}
	}
	return id, nil
}

func (d *Dispatcher) file(op, name string) (*Entry, error) {
	id, err := d.resolve(op, name)
	if err != nil {
		return nil, err
	}
	if d.tree.Kind(id) != KindFile {
		return nil, &fs.PathError{Op: op, Path: name, Err: ErrIsDir}
	}
	return d.tree.Entry(id), nil
}

// Read fills p with the contents of the file at name starting at off. It
// returns fewer than len(p) bytes, and a nil error, when the file ends
// first; at or past the end it returns 0, nil.
func (d *Dispatcher) Read(name string, p []byte, off int64) (int, error) {
	e, err := d.file("read", name)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	n, err := d.reader.ReadAt(e, p, off)
	if err != nil {
		log.Debug().
			Err(err).
			Str("path", name).
			Int64("offset", off).
			Msg("dispatch: archive read failed")
		return n, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	return n, nil
}

// ReadFile returns up to length bytes of the file at name starting at
// offset. The result is empty when offset is at or past the end of the
// file, and truncated when the file ends before offset+length.
func (d *Dispatcher) ReadFile(name string, offset int64, length int) ([]byte, error) {
	e, err := d.file("read", name)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	if offset >= e.DataSize || length == 0 {
		return []byte{}, nil
	}
	if remaining := e.DataSize - offset; int64(length) > remaining {
		length = int(remaining)
	}

	buf := make([]byte, length)
	n, err := d.Read(name, buf, offset)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

