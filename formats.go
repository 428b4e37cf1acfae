package archivefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// RegisterFormat registers a format. It should be called during init.
// Duplicate formats by name are not allowed and will panic.
func RegisterFormat(format Format) {
	name := strings.Trim(strings.ToLower(format.Extension()), ".")
	if _, ok := formats[name]; ok {
		panic("format " + name + " is already registered")
	}
	formats[name] = format
}

// Identify iterates the registered formats and returns the one that
// matches the given filename and/or stream. It is capable of identifying
// compressed files (.gz, .xz...), archive files (.tar, .zip, .pbo...), and
// compressed archive files (tar.gz, tar.bz2...). The returned Format
// value can be type-asserted to ascertain its capabilities.
//
// A match by stream beats a match by name, so a misnamed file is still
// read correctly. Formats are tried in name order, which makes the outcome
// deterministic when several match equally well.
//
// If no matching formats were found, special error ErrNoMatch is returned.
func Identify(ctx context.Context, filename string, stream io.ReadSeeker) (Format, error) {
	var compression Compression
	var archival Archival

	// try compression format first, since that's the outer "layer"
	matched, err := identifyBest(ctx, filename, stream, nil, func(f Format) bool {
		_, ok := f.(Compression)
		return ok
	})
	if err != nil {
		return nil, err
	}
	if matched != nil {
		compression = matched.(Compression)
	}

	// try archive format next, looking through the compression if any
	matched, err = identifyBest(ctx, filename, stream, compression, func(f Format) bool {
		_, ok := f.(Archival)
		return ok
	})
	if err != nil {
		return nil, err
	}
	if matched != nil {
		archival = matched.(Archival)
	}

	switch {
	case compression != nil && archival == nil:
		return compression, nil
	case compression == nil && archival != nil:
		return archival, nil
	case compression != nil && archival != nil:
		return CompressedArchive{compression, archival}, nil
	default:
		return nil, ErrNoMatch
	}
}

func identifyBest(ctx context.Context, filename string, stream io.ReadSeeker, comp Compression, want func(Format) bool) (Format, error) {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)

	var byName Format
	for _, name := range names {
		format := formats[name]
		if !want(format) {
			continue
		}

		matchResult, err := identifyOne(ctx, format, filename, stream, comp)
		if err != nil {
			return nil, fmt.Errorf("matching %s: %w", name, err)
		}
		if matchResult.ByStream {
			return format, nil
		}
		if matchResult.ByName && byName == nil {
			byName = format
		}
	}
	return byName, nil
}

func identifyOne(ctx context.Context, format Format, filename string, stream io.ReadSeeker, comp Compression) (MatchResult, error) {
	if stream == nil {
		// shimming an empty stream is easier than hoping every format's
		// implementation of Match() expects and handles a nil stream
		stream = strings.NewReader("")
	}

	// reset stream position to beginning, then restore current position when done
	previousOffset, err := stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return MatchResult{}, err
	}
	_, err = stream.Seek(0, io.SeekStart)
	if err != nil {
		return MatchResult{}, err
	}
	defer stream.Seek(previousOffset, io.SeekStart)

	// if looking within a compressed format, wrap the stream in a
	// reader that can decompress it so we can match the "inner" format
	// (a new reader every time, since seeking the stream invalidates
	// the decompressor's state)
	var r io.Reader = stream
	if comp != nil {
		decompressedStream, err := comp.OpenReader(stream)
		if err != nil {
			// a stream that only matched the compression by name
			// can fail here; that is not a match, but not an error
			return MatchResult{}, nil
		}
		defer decompressedStream.Close()
		r = decompressedStream
	}

	return format.Match(ctx, filename, r)
}

// readAtMost reads at most n bytes from the stream. A nil, empty, or short
// stream is not an error. The returned slice of bytes may have length < n
// without an error.
func readAtMost(stream io.Reader, n int) ([]byte, error) {
	if stream == nil || n <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	nr, err := io.ReadFull(stream, buf)

	// Return the bytes read if there was no error OR if the
	// error was EOF (stream was empty) or UnexpectedEOF (stream
	// had less than n). We ignore those errors because we aren't
	// required to read the full n bytes; so an empty or short
	// stream is not actually an error.
	if err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return buf[:nr], nil
	}

	return nil, err
}

// CompressedArchive combines a compression format on top of an archive
// format (e.g. "tar.gz") and provides both functionalities in a single
// type. Only archive formats that can be parsed from a plain stream
// (tar) can be loaded this way; the others need random access.
//
// As this type is intended to compose compression and archive formats,
// both must be specified in order for this value to be valid, or its
// methods will return errors.
type CompressedArchive struct {
	Compression
	Archival
}

// Extension returns a concatenation of the archive and compression format extensions.
func (caf CompressedArchive) Extension() string {
	if caf.Compression == nil && caf.Archival == nil {
		panic("missing both compression and archive formats")
	}
	var name string
	if caf.Archival != nil {
		name += caf.Archival.Extension()
	}
	if caf.Compression != nil {
		name += caf.Compression.Extension()
	}
	return name
}

// Match matches if the input matches both the compression and archive format.
func (caf CompressedArchive) Match(ctx context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var conglomerate MatchResult

	if caf.Compression != nil {
		matchResult, err := caf.Compression.Match(ctx, filename, stream)
		if err != nil {
			return MatchResult{}, err
		}
		if !matchResult.Matched() {
			return matchResult, nil
		}

		// wrap the reader with the decompressor so we can
		// attempt to match the archive by reading the stream
		rc, err := caf.Compression.OpenReader(stream)
		if err != nil {
			return matchResult, err
		}
		defer rc.Close()
		stream = rc

		conglomerate = matchResult
	}

	if caf.Archival != nil {
		matchResult, err := caf.Archival.Match(ctx, filename, stream)
		if err != nil {
			return MatchResult{}, err
		}
		if !matchResult.Matched() {
			return matchResult, nil
		}
		conglomerate.ByName = conglomerate.ByName || matchResult.ByName
		conglomerate.ByStream = conglomerate.ByStream || matchResult.ByStream
	}

	return conglomerate, nil
}

// Load reads the archive's entry table through the decompressor.
func (caf CompressedArchive) Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error) {
	if caf.Archival == nil {
		return nil, fmt.Errorf("no archive format")
	}
	if caf.Compression == nil {
		return caf.Archival.Load(ctx, source)
	}
	sl, ok := caf.Archival.(streamLoader)
	if !ok {
		return nil, fmt.Errorf("%s archives cannot be read through %s compression",
			caf.Archival.Extension(), caf.Compression.Extension())
	}
	return sl.loadStream(ctx, source, caf.Compression)
}

// MatchResult returns true if the format was matched either
// by name, stream, or both. Name usually refers to matching
// by file extension, and stream usually refers to reading
// the first few bytes of the stream (its header). A stream
// match is generally stronger, as filenames are not always
// indicative of their contents if they even exist at all.
type MatchResult struct {
	ByName, ByStream bool
}

// Matched returns true if a match was made by either name or stream.
func (mr MatchResult) Matched() bool { return mr.ByName || mr.ByStream }

// ErrNoMatch is returned if there are no matching formats.
var ErrNoMatch = fmt.Errorf("no formats matched")

// Registered formats.
var formats = make(map[string]Format)

// Interface guards
var (
	_ Format   = (*CompressedArchive)(nil)
	_ Archival = (*CompressedArchive)(nil)
)
