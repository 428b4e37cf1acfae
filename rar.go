package archivefs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nwaples/rardecode/v2"
	"github.com/rs/zerolog/log"
)

func init() {
	RegisterFormat(Rar{})
}

type Rar struct {
	// If true, a header that cannot be read is logged and ends the
	// archive: the members before it are kept.
	ContinueOnError bool

	// Password to open archives.
	Password string
}

func (Rar) Extension() string { return ".rar" }

func (r Rar) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.Contains(strings.ToLower(filename), r.Extension()) {
		mr.ByName = true
	}

	// match file header (there are two versions; allocate buffer for larger one)
	buf, err := readAtMost(stream, len(rarHeaderV5_0))
	if err != nil {
		return mr, err
	}

	matchedV1_5 := len(buf) >= len(rarHeaderV1_5) &&
		bytes.Equal(rarHeaderV1_5, buf[:len(rarHeaderV1_5)])
	matchedV5_0 := len(buf) >= len(rarHeaderV5_0) &&
		bytes.Equal(rarHeaderV5_0, buf[:len(rarHeaderV5_0)])

	mr.ByStream = matchedV1_5 || matchedV5_0

	return mr, nil
}

func (r Rar) options() []rardecode.Option {
	var options []rardecode.Option
	if r.Password != "" {
		options = append(options, rardecode.Password(r.Password))
	}
	return options
}

// Load walks the rar's headers. Rar data is a single stream, so opening a
// member reopens the archive and skips to it.
func (r Rar) Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error) {
	rr, err := rardecode.NewReader(io.NewSectionReader(source, 0, source.Size()), r.options()...)
	if err != nil {
		return nil, err
	}

	var entries entryList
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err // honor context cancellation
		}

		hdr, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if r.ContinueOnError && ctx.Err() == nil {
				log.Error().
					Err(err).
					Int("index", index).
					Msg("rar: corrupt header, keeping the members before it")
				return newStreamCache(entries)
			}
			return nil, err
		}
		if hdr.IsDir || !hdr.Mode().IsRegular() {
			log.Debug().Str("name", hdr.Name).Msg("rar: skipping non-regular member")
			continue
		}

		size := hdr.UnPackedSize
		if hdr.UnKnownSize {
			// only decompressing tells
			size, err = io.Copy(io.Discard, contextReader{ctx, rr})
			if err != nil {
				return nil, fmt.Errorf("%s: measuring: %w", hdr.Name, err)
			}
		}

		entries = append(entries, &Entry{
			Name:      hdr.Name,
			DataSize:  size,
			Timestamp: hdr.ModificationTime,
			Header:    hdr,
			open:      r.opener(source, index),
		})
	}

	return newStreamCache(entries)
}

func (r Rar) opener(source *io.SectionReader, index int) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		rr, err := rardecode.NewReader(io.NewSectionReader(source, 0, source.Size()), r.options()...)
		if err != nil {
			return nil, err
		}
		for i := 0; i <= index; i++ {
			if _, err := rr.Next(); err != nil {
				return nil, fmt.Errorf("seeking to member %d: %w", index, truncated(err))
			}
		}
		return io.NopCloser(rr), nil
	}
}

var (
	rarHeaderV1_5 = []byte("Rar!\x1a\x07\x00")     // v1.5
	rarHeaderV5_0 = []byte("Rar!\x1a\x07\x01\x00") // v5.0
)

// Interface guards
var _ Archival = (*Rar)(nil)
