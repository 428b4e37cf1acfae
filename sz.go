package archivefs

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/s2"
)

func init() {
	RegisterFormat(Sz{})
}

// Sz facilitates Snappy decompression. It uses S2
// for reading, which also reads Snappy streams.
type Sz struct{}

func (sz Sz) Extension() string { return ".sz" }

func (sz Sz) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.Contains(strings.ToLower(filename), sz.Extension()) ||
		strings.Contains(strings.ToLower(filename), ".s2") {
		mr.ByName = true
	}

	// match file header
	buf, err := readAtMost(stream, len(snappyHeader))
	if err != nil {
		return mr, err
	}
	mr.ByStream = bytes.Equal(buf, snappyHeader)

	return mr, nil
}

func (Sz) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

// https://github.com/google/snappy/blob/master/framing_format.txt - contains "sNaPpY"
var snappyHeader = []byte{0xff, 0x06, 0x00, 0x00, 0x73, 0x4e, 0x61, 0x50, 0x70, 0x59}
