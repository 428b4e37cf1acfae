package archivefs

import (
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

func init() {
	RegisterFormat(Zlib{})
}

// Zlib facilitates zlib decompression.
type Zlib struct{}

func (Zlib) Extension() string { return ".zz" }

func (zz Zlib) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.Contains(strings.ToLower(filename), zz.Extension()) {
		mr.ByName = true
	}

	// match file header
	buf, err := readAtMost(stream, 2)
	if err != nil {
		return mr, err
	}
	mr.ByStream = isZlibHeader(buf)

	return mr, nil
}

func (Zlib) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}

// isZlibHeader checks the two header bytes of RFC 1950: deflate with a
// window of at most 32K, no preset dictionary, and a valid check value.
// A single 0x78 byte alone also starts plenty of text files.
func isZlibHeader(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	cmf, flg := buf[0], buf[1]
	return cmf&0x0f == 8 &&
		cmf>>4 <= 7 &&
		flg&0x20 == 0 &&
		(uint16(cmf)<<8|uint16(flg))%31 == 0
}
