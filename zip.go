package archivefs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/STARRY-S/zip"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/therootcompany/xz"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

func init() {
	RegisterFormat(Zip{})

	// the compression methods archive/zip does not know about
	zip.RegisterDecompressor(ZipMethodBzip2, func(r io.Reader) io.ReadCloser {
		bz2r, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil
		}
		return bz2r
	})
	zip.RegisterDecompressor(ZipMethodZstd, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil
		}
		return zr.IOReadCloser()
	})
	zip.RegisterDecompressor(ZipMethodXz, func(r io.Reader) io.ReadCloser {
		xr, err := xz.NewReader(r, 0)
		if err != nil {
			return nil
		}
		return io.NopCloser(xr)
	})
}

// Additional compression methods not offered by archive/zip.
// See https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT section 4.4.5.
const (
	ZipMethodBzip2 = 12
	ZipMethodZstd  = 93
	ZipMethodXz    = 95
)

type Zip struct {
	// For files in zip archives that do not have UTF-8
	// encoded filenames and comments, specify the character
	// encoding here.
	TextEncoding encoding.Encoding
}

func (Zip) Extension() string { return ".zip" }

func (z Zip) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.Contains(strings.ToLower(filename), z.Extension()) {
		mr.ByName = true
	}

	// match file header
	buf, err := readAtMost(stream, 4)
	if err != nil {
		return mr, err
	}
	for _, hdr := range zipHeaders {
		if bytes.Equal(buf, hdr) {
			mr.ByStream = true
			break
		}
	}

	return mr, nil
}

// Load reads the zip's central directory. Stored members are read in place;
// the others are decompressed from their start, continuing where the last
// read of the member stopped.
func (z Zip) Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error) {
	zr, err := zip.NewReader(source, source.Size())
	if err != nil {
		return nil, err
	}

	entries := make(entryList, 0, len(zr.File))
	for _, f := range zr.File {
		f := f // make a copy for the Open closure
		if err := ctx.Err(); err != nil {
			return nil, err // honor context cancellation
		}

		z.decodeText(&f.FileHeader)

		if !f.Mode().IsRegular() {
			log.Debug().Str("name", f.Name).Msg("zip: skipping non-regular member")
			continue
		}

		e := &Entry{
			Name:      f.Name,
			DataSize:  int64(f.UncompressedSize64),
			Timestamp: f.Modified,
			Header:    &f.FileHeader,
		}
		if f.Method == zip.Store && f.Flags&0x1 == 0 {
			offset, err := f.DataOffset()
			if err != nil {
				return nil, fmt.Errorf("%s: locating data: %w", f.Name, err)
			}
			e.section = io.NewSectionReader(source, offset, int64(f.UncompressedSize64))
		} else {
			e.open = f.Open
		}
		entries = append(entries, e)
	}

	return newStreamCache(entries)
}

// decodeText decodes the name and comment fields from hdr into UTF-8.
// It is a no-op if the text is already UTF-8 encoded or if z.TextEncoding
// is not specified.
func (z Zip) decodeText(hdr *zip.FileHeader) {
	if hdr.NonUTF8 && z.TextEncoding != nil {
		dec := z.TextEncoding.NewDecoder()
		filename, err := dec.String(hdr.Name)
		if err == nil {
			hdr.Name = filename
		}
		if hdr.Comment != "" {
			comment, err := dec.String(hdr.Comment)
			if err == nil {
				hdr.Comment = comment
			}
		}
	}
}

// LookupEncoding returns the text encoding registered with IANA under
// name, such as "shift_jis" or "cp437".
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("text encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("text encoding %q is not supported", name)
	}
	return enc, nil
}

// Headers are the first bytes of a zip: a local file header, or the end of
// central directory record of an empty archive.
var zipHeaders = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"),
}

// Interface guards
var _ Archival = (*Zip)(nil)
