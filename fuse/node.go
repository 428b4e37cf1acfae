package fuse

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"strings"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pbofuse/archivefs"
	"github.com/rs/zerolog/log"
)

// node is the state every inode shares: the dispatcher and the
// slash-separated path it was looked up by.
type node struct {
	gofuse.Inode
	d     *archivefs.Dispatcher
	path  string
	owner fuse.Owner
}

func (n *node) childPath(name string) string { return path.Join("/", n.path, name) }

func (n *node) getattr(out *fuse.Attr) syscall.Errno {
	attr, err := n.d.Getattr(n.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(out, attr, n.owner)
	return 0
}

// dirNode is a directory of the archive tree.
type dirNode struct {
	node
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)
var _ gofuse.NodeSetattrer = (*dirNode)(nil)
var _ gofuse.NodeCreater = (*dirNode)(nil)
var _ gofuse.NodeMkdirer = (*dirNode)(nil)
var _ gofuse.NodeMknoder = (*dirNode)(nil)
var _ gofuse.NodeUnlinker = (*dirNode)(nil)
var _ gofuse.NodeRmdirer = (*dirNode)(nil)
var _ gofuse.NodeRenamer = (*dirNode)(nil)
var _ gofuse.NodeSymlinker = (*dirNode)(nil)
var _ gofuse.NodeLinker = (*dirNode)(nil)

// Lookup finds the child called name. Backslashes separate segments in
// archive names, so no child can have one in its name.
func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if strings.ContainsRune(name, '\\') {
		return nil, syscall.ENOENT
	}
	childPath := d.childPath(name)
	attr, err := d.d.Getattr(childPath)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, attr, d.owner)

	var embedder gofuse.InodeEmbedder
	if attr.IsDir() {
		embedder = &dirNode{node: node{d: d.d, path: childPath, owner: d.owner}}
	} else {
		embedder = &fileNode{node: node{d: d.d, path: childPath, owner: d.owner}}
	}
	return d.NewInode(ctx, embedder, gofuse.StableAttr{Mode: fuseMode(attr.Mode), Ino: attr.Ino}), 0
}

// Readdir lists the children in archive order. The "." and ".." entries
// are added by go-fuse itself.
func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	children, err := d.d.ReadDirEntries(d.path)
	if err != nil {
		return nil, toErrno(err)
	}
	entries := make([]fuse.DirEntry, len(children))
	for i, c := range children {
		entries[i] = fuse.DirEntry{
			Name: c.Name,
			Mode: fuseMode(c.Attr.Mode),
			Ino:  c.Attr.Ino,
		}
	}
	return gofuse.NewListDirStream(entries), 0
}

func (d *dirNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return d.getattr(&out.Attr)
}

func (d *dirNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

func (d *dirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

func (d *dirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (d *dirNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (d *dirNode) Unlink(ctx context.Context, name string) syscall.Errno { return syscall.EROFS }

func (d *dirNode) Rmdir(ctx context.Context, name string) syscall.Errno { return syscall.EROFS }

func (d *dirNode) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EROFS
}

func (d *dirNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (d *dirNode) Link(ctx context.Context, target gofuse.InodeEmbedder, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

// fileNode is a regular file backed by an archive entry. Opening it
// creates no handle; every read goes to the archive.
type fileNode struct {
	node
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeSetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)

func (f *fileNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return f.getattr(&out.Attr)
}

func (f *fileNode) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	// Archive content is immutable, so the page cache is always valid.
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (f *fileNode) Read(ctx context.Context, fh gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := f.d.Read(f.path, dest, off)
	if err != nil {
		log.Error().
			Err(err).
			Str("path", f.path).
			Int64("offset", off).
			Msg("fuse: read failed")
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// toErrno maps dispatcher errors onto the errno the kernel expects.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, archivefs.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, archivefs.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, fs.ErrInvalid):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

// fillAttr copies attr into out, owned by owner.
func fillAttr(out *fuse.Attr, attr archivefs.Attr, owner fuse.Owner) {
	out.Ino = attr.Ino
	out.Mode = fuseMode(attr.Mode)
	out.Nlink = attr.Nlink
	out.Size = uint64(attr.Size)
	out.Blocks = (out.Size + 511) / 512
	out.Owner = owner
	out.SetTimes(&attr.Atime, &attr.Mtime, &attr.Ctime)
}

// fuseMode converts an io/fs mode to the stat(2) mode bits.
func fuseMode(mode fs.FileMode) uint32 {
	perm := uint32(mode.Perm())
	if mode.IsDir() {
		return syscall.S_IFDIR | perm
	}
	return syscall.S_IFREG | perm
}
