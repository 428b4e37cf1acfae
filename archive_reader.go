package archivefs

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ArchiveReader is a loaded archive container. It owns the entries it
// yields and serves byte-range reads of their payloads.
//
// ReadAt must be safe to call concurrently with independent ranges.
type ArchiveReader interface {
	// Entries returns the payload entries in archive order.
	Entries() []*Entry

	// ReadAt reads up to len(p) bytes of e's payload starting at off. A
	// read reaching the end of the payload returns the bytes available
	// with a nil error, and a read at or past the end returns 0, nil.
	// Unlike io.ReaderAt, a short read is therefore not an error.
	ReadAt(e *Entry, p []byte, off int64) (int, error)
}

// Entry is one named payload inside an archive.
type Entry struct {
	// Name is the archive-native name. It may use backslashes as
	// separators and may carry redundant separators.
	Name string

	// DataSize is the number of readable bytes in the payload, after any
	// per-entry decompression.
	DataSize int64

	// Timestamp is the modification time recorded in the archive.
	Timestamp time.Time

	// Header is the format-specific header the entry was read from;
	// its type depends on the archive format, and it may be nil.
	Header any

	// Exactly one of these is set by the format that produced the entry:
	// section for payloads stored verbatim at a known offset, open for
	// payloads that have to be decoded from their start.
	section *io.SectionReader
	open    func() (io.ReadCloser, error)
}

func (e *Entry) readAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %d", e.Name, off)
	}
	if off >= e.DataSize || len(p) == 0 {
		return 0, nil
	}
	if remaining := e.DataSize - off; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	if e.section != nil {
		n, err := e.section.ReadAt(p, off)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return n, err
	}
	if e.open == nil {
		return 0, fmt.Errorf("%s: entry has no readable content", e.Name)
	}

	rc, err := e.open()
	if err != nil {
		return 0, fmt.Errorf("%s: opening payload: %w", e.Name, err)
	}
	defer rc.Close()

	if off > 0 {
		if _, err := io.CopyN(io.Discard, rc, off); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			return 0, fmt.Errorf("%s: seeking to %d: %w", e.Name, off, err)
		}
	}
	n, err := io.ReadFull(rc, p)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return n, err
}

// entryList is the ArchiveReader shared by the formats in this package.
type entryList []*Entry

func (l entryList) Entries() []*Entry { return l }

func (entryList) ReadAt(e *Entry, p []byte, off int64) (int, error) { return e.readAt(p, off) }

// readCloser pairs a reader with the closer of the stream beneath it.
type readCloser struct {
	io.Reader
	io.Closer
}

// nopCloser is used where a reader has nothing of its own to release.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Interface guards
var _ ArchiveReader = entryList(nil)
