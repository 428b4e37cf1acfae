package archivefs

import (
	"io/fs"
	"time"
)

const (
	dirPerm  fs.FileMode = 0o555 // read and traverse for everyone
	filePerm fs.FileMode = 0o444 // read-only for everyone
	linkCount            = 2
)

// Attr is the metadata record of a tree node. It is synthesized once, when
// the node is created, and never changes afterwards.
type Attr struct {
	// Ino is the node's inode number: its NodeID plus one, so that the
	// root is inode 1.
	Ino uint64

	// Mode holds the type and permission bits. Directories carry
	// fs.ModeDir; regular files carry no type bits.
	Mode fs.FileMode

	Nlink uint32

	// Size is the entry's DataSize for files and zero for directories.
	Size int64

	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// IsDir reports whether the attributes describe a directory.
func (a Attr) IsDir() bool { return a.Mode.IsDir() }

func dirAttr(id NodeID, created time.Time) Attr {
	return Attr{
		Ino:   inodeOf(id),
		Mode:  fs.ModeDir | dirPerm,
		Nlink: linkCount,
		Atime: created,
		Mtime: created,
		Ctime: created,
	}
}

func fileAttr(id NodeID, e *Entry) Attr {
	return Attr{
		Ino:   inodeOf(id),
		Mode:  filePerm,
		Nlink: linkCount,
		Size:  e.DataSize,
		Atime: e.Timestamp,
		Mtime: e.Timestamp,
		Ctime: e.Timestamp,
	}
}

func inodeOf(id NodeID) uint64 { return uint64(id) + 1 }
