package archivefs

import (
	"context"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

func init() {
	RegisterFormat(Brotli{})
}

// Brotli facilitates brotli decompression.
type Brotli struct{}

func (Brotli) Extension() string { return ".br" }

func (br Brotli) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if strings.HasSuffix(strings.ToLower(filename), br.Extension()) {
		mr.ByName = true
	}

	// brotli does not have well-defined file headers; the
	// best way to match the stream would be to try decoding
	// part of it, and this is not implemented for now

	return mr, nil
}

func (Brotli) OpenReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(r)), nil
}
