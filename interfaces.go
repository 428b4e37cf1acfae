package archivefs

import (
	"context"
	"io"
)

// Format represents either an archive or compression format.
type Format interface {
	// Extension returns the conventional file extension for this
	// format, including the leading dot.
	Extension() string

	// Match returns true if the given name/stream is recognized.
	// One of the arguments is optional: filename might be empty
	// if working with an unnamed stream, or stream might be
	// empty if only working with a filename. The filename should
	// consist only of the base name, not a path component, and is
	// typically used for matching by file extension. However,
	// matching by reading the stream is preferred. Match reads
	// only as many bytes as needed to determine a match.
	Match(ctx context.Context, filename string, stream io.Reader) (MatchResult, error)
}

// Decompressor can decompress data by wrapping a reader.
type Decompressor interface {
	// OpenReader wraps r with a new reader that decompresses what is read.
	// The reader must be closed when reading is finished.
	OpenReader(r io.Reader) (io.ReadCloser, error)
}

// Compression is a compression format that can be read.
type Compression interface {
	Format
	Decompressor
}

// Loader parses an archive container into an ArchiveReader.
type Loader interface {
	// Load reads the entry table of the archive in source. The returned
	// reader may keep reading from source until the caller is done with
	// it, so source must stay open that long.
	//
	// Context cancellation must be honored.
	Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error)
}

// Archival is an archive format that can be loaded.
type Archival interface {
	Format
	Loader
}

// streamLoader is implemented by archive formats that can also be read
// through a compression layer, such as tar inside gzip. There is no random
// access into such streams, so a read behind the last one decompresses
// from the start again.
type streamLoader interface {
	loadStream(ctx context.Context, source *io.SectionReader, comp Decompressor) (ArchiveReader, error)
}
