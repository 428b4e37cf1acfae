package archivefs

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/rs/zerolog/log"
)

func init() {
	RegisterFormat(SevenZip{})

	// looks like the sevenzip package registers a lot of decompressors for us automatically:
	// https://github.com/bodgit/sevenzip/blob/46c5197162c784318b98b9a3f80289a9aa1ca51a/register.go#L38-L61
}

type SevenZip struct {
	// The password, if dealing with an encrypted archive.
	Password string
}

func (z SevenZip) Extension() string { return ".7z" }

func (z SevenZip) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.Contains(strings.ToLower(filename), z.Extension()) {
		mr.ByName = true
	}

	// match file header
	buf, err := readAtMost(stream, len(sevenZipHeader))
	if err != nil {
		return mr, err
	}
	mr.ByStream = bytes.Equal(buf, sevenZipHeader)

	return mr, nil
}

// Load reads the 7z header. Members of solid blocks have no offset of their
// own, so a member is decompressed from the start of its block; the
// sevenzip reader keeps recently used block readers around to soften that.
func (z SevenZip) Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error) {
	zr, err := sevenzip.NewReaderWithPassword(source, source.Size(), z.Password)
	if err != nil {
		return nil, err
	}

	entries := make(entryList, 0, len(zr.File))
	for _, f := range zr.File {
		f := f // make a copy for the Open closure
		if err := ctx.Err(); err != nil {
			return nil, err // honor context cancellation
		}

		info := f.FileInfo()
		if !info.Mode().IsRegular() {
			log.Debug().Str("name", f.Name).Msg("7z: skipping non-regular member")
			continue
		}

		entries = append(entries, &Entry{
			Name:      f.Name,
			DataSize:  info.Size(),
			Timestamp: f.Modified,
			Header:    f.FileHeader,
			open:      f.Open,
		})
	}

	return newStreamCache(entries)
}

// https://py7zr.readthedocs.io/en/latest/archive_format.html#signature
var sevenZipHeader = []byte("7z\xBC\xAF\x27\x1C")

// Interface guards
var _ Archival = (*SevenZip)(nil)
