package archivefs

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

func init() {
	RegisterFormat(Tar{})
}

type Tar struct {
	// If true, a header that cannot be read is logged and ends the
	// archive: the members before it are kept.
	ContinueOnError bool
}

func (Tar) Extension() string { return ".tar" }

func (t Tar) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.Contains(strings.ToLower(filename), t.Extension()) {
		mr.ByName = true
	}

	// match file header
	if stream != nil {
		r := tar.NewReader(stream)
		_, err := r.Next()
		mr.ByStream = err == nil
	}

	return mr, nil
}

// Load reads an uncompressed tar. The tar reader consumes headers in whole
// blocks and never reads ahead, so right after Next the source is
// positioned at the member's data, which can then be read in place.
func (t Tar) Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error) {
	if _, err := source.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	tr := tar.NewReader(source)

	var entries entryList
	err := t.walk(ctx, tr, func(index int, hdr *tar.Header) error {
		e := tarEntry(hdr)
		if isSparse(hdr) {
			// the data on disk is not the file's content
			e.open = t.streamOpener(source, nil, index)
		} else {
			offset, err := source.Seek(0, io.SeekCurrent)
			if err != nil {
				return err
			}
			e.section = io.NewSectionReader(source, offset, hdr.Size)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newStreamCache(entries)
}

// loadStream reads a tar through comp. Members are addressed by their
// position in the stream, so opening one decompresses up to the member.
func (t Tar) loadStream(ctx context.Context, source *io.SectionReader, comp Decompressor) (ArchiveReader, error) {
	rc, err := comp.OpenReader(io.NewSectionReader(source, 0, source.Size()))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var entries entryList
	err = t.walk(ctx, tar.NewReader(rc), func(index int, hdr *tar.Header) error {
		e := tarEntry(hdr)
		e.open = t.streamOpener(source, comp, index)
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newStreamCache(entries)
}

// walk calls fn for each regular file in tr with the member's index in the
// archive, counting every header Next returns.
func (t Tar) walk(ctx context.Context, tr *tar.Reader, fn func(index int, hdr *tar.Header) error) error {
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err // honor context cancellation
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// the reader cannot get past a bad header: every later
			// Next fails the same way
			if t.ContinueOnError && ctx.Err() == nil {
				log.Error().
					Err(err).
					Int("index", index).
					Msg("tar: corrupt header, keeping the members before it")
				return nil
			}
			return err
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			// directories are implied by file paths; links, devices and
			// pax global headers have no content of their own
			log.Debug().
				Str("name", hdr.Name).
				Str("type", string(hdr.Typeflag)).
				Msg("tar: skipping non-regular member")
			continue
		}
		if err := fn(index, hdr); err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}
	}
}

// streamOpener returns an opener for the member at index, decompressing
// source through comp when comp is not nil.
func (t Tar) streamOpener(source *io.SectionReader, comp Decompressor, index int) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		var r io.Reader = io.NewSectionReader(source, 0, source.Size())
		var closer io.Closer = nopCloser{}
		if comp != nil {
			rc, err := comp.OpenReader(r)
			if err != nil {
				return nil, err
			}
			r, closer = rc, rc
		}

		tr := tar.NewReader(r)
		for i := 0; i <= index; i++ {
			if _, err := tr.Next(); err != nil {
				closer.Close()
				return nil, fmt.Errorf("seeking to member %d: %w", index, truncated(err))
			}
		}
		return readCloser{Reader: tr, Closer: closer}, nil
	}
}

func tarEntry(hdr *tar.Header) *Entry {
	return &Entry{
		Name:      hdr.Name,
		DataSize:  hdr.Size,
		Timestamp: hdr.ModTime,
		Header:    hdr,
	}
}

func isSparse(hdr *tar.Header) bool {
	if hdr.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for key := range hdr.PAXRecords {
		if strings.HasPrefix(key, "GNU.sparse.") {
			return true
		}
	}
	return false
}

// Interface guards
var (
	_ Archival     = (*Tar)(nil)
	_ streamLoader = (*Tar)(nil)
)
