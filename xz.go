package archivefs

import (
	"bytes"
	"context"
	"io"
	"strings"

	fastxz "github.com/therootcompany/xz"
	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterFormat(Xz{})
	RegisterFormat(Lzma{})
}

// Xz facilitates xz decompression.
type Xz struct{}

func (Xz) Extension() string { return ".xz" }

func (x Xz) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.Contains(strings.ToLower(filename), x.Extension()) {
		mr.ByName = true
	}

	// match file header
	buf, err := readAtMost(stream, len(xzHeader))
	if err != nil {
		return mr, err
	}
	mr.ByStream = bytes.Equal(buf, xzHeader)

	return mr, nil
}

func (Xz) OpenReader(r io.Reader) (io.ReadCloser, error) {
	xr, err := fastxz.NewReader(r, 0)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xr), err
}

// Lzma facilitates decompression of the legacy .lzma format, the raw LZMA
// stream that predates xz.
type Lzma struct{}

func (Lzma) Extension() string { return ".lzma" }

func (lz Lzma) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename; the header is a bare properties byte and
	// dictionary size with no magic number to match the stream by
	if strings.HasSuffix(strings.ToLower(filename), lz.Extension()) {
		mr.ByName = true
	}

	return mr, nil
}

func (Lzma) OpenReader(r io.Reader) (io.ReadCloser, error) {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(lr), nil
}

// magic number at the beginning of xz files; see section 2.1.1.1
// of https://tukaani.org/xz/xz-file-format.txt
var xzHeader = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
