package archivefs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// SingleFile loads a compressed file that is not an archive, such as
// notes.txt.gz, as an archive holding one entry: the decompressed content.
type SingleFile struct {
	Compression Compression

	// FileName is the name of the single entry.
	FileName string

	// ModTime is the entry's timestamp, usually the compressed file's.
	ModTime time.Time
}

func (s SingleFile) Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error) {
	open := func() (io.ReadCloser, error) {
		return s.Compression.OpenReader(io.NewSectionReader(source, 0, source.Size()))
	}

	// the decompressed size is only known after decompressing once
	rc, err := open()
	if err != nil {
		return nil, fmt.Errorf("opening %s stream: %w", s.Compression.Extension(), err)
	}
	defer rc.Close()
	size, err := io.Copy(io.Discard, contextReader{ctx, rc})
	if err != nil {
		return nil, fmt.Errorf("decompressing %s stream: %w", s.Compression.Extension(), err)
	}

	return newStreamCache(entryList{{
		Name:      s.FileName,
		DataSize:  size,
		Timestamp: s.ModTime,
		open:      open,
	}})
}

// singleFileName is the name of a compressed file without its compression
// extension, or the name itself when it has none.
func singleFileName(filename string, comp Compression) string {
	ext := comp.Extension()
	if strings.HasSuffix(strings.ToLower(filename), ext) && len(filename) > len(ext) {
		return filename[:len(filename)-len(ext)]
	}
	return filename
}

// contextReader makes long copies abort when ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// Interface guards
var _ Loader = (*SingleFile)(nil)
