package archivefs

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrArchiveLoad is part of every error that prevents a container from
	// being opened, identified or parsed. Such errors abort the mount.
	ErrArchiveLoad = errors.New("archivefs: cannot load archive")

	// ErrInvalidStructure is part of every error caused by an entry whose
	// path cannot be placed in the tree. Such errors abort the mount.
	ErrInvalidStructure = errors.New("archivefs: invalid archive structure")

	// ErrNotDir is returned when a directory operation reaches a file, or a
	// path walks through a file.
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir is returned when a file operation reaches a directory.
	ErrIsDir = errors.New("is a directory")
)

// StructureError describes an entry that conflicts with the tree built from
// the entries before it.
type StructureError struct {
	// Entry is the entry name as recorded in the archive.
	Entry string

	// Segment is the path segment at which the conflict was detected.
	// It is empty when the entry name as a whole is unusable.
	Segment string

	// Reason is a short description of the conflict.
	Reason string
}

func (e *StructureError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("invalid archive structure: %s: %s", e.Entry, e.Reason)
	}
	return fmt.Sprintf("invalid archive structure: %s: %s at %q", e.Entry, e.Reason, e.Segment)
}

// Unwrap makes errors.Is(err, ErrInvalidStructure) hold.
func (e *StructureError) Unwrap() error { return ErrInvalidStructure }

// loadError joins err with ErrArchiveLoad and the path of the container.
func loadError(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrArchiveLoad, path, err)
}
