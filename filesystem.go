package archivefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
)

// OpenOptions configures Open. The zero value identifies the format from
// the container and uses each format's defaults.
type OpenOptions struct {
	// Format skips identification when set.
	Format Format

	// Clock supplies the creation time of synthesized directories.
	// Defaults to time.Now.
	Clock func() time.Time

	// Password for encrypted 7z and rar archives.
	Password string

	// VerifyChecksum makes PBO loading check the SHA-1 trailer.
	VerifyChecksum bool

	// Multithreaded enables parallel gzip and zstd decompression.
	Multithreaded bool

	// ContinueOnError keeps the members of a tar or rar archive that
	// come before a corrupt header instead of failing the load.
	ContinueOnError bool

	// TextEncoding decodes zip entry names that are not flagged as UTF-8.
	TextEncoding encoding.Encoding
}

// configure returns format with the options applied to whichever of its
// fields they concern.
func (o OpenOptions) configure(format Format) Format {
	switch f := format.(type) {
	case PBO:
		f.VerifyChecksum = f.VerifyChecksum || o.VerifyChecksum
		return f
	case Zip:
		if f.TextEncoding == nil {
			f.TextEncoding = o.TextEncoding
		}
		return f
	case SevenZip:
		if f.Password == "" {
			f.Password = o.Password
		}
		return f
	case Rar:
		if f.Password == "" {
			f.Password = o.Password
		}
		f.ContinueOnError = f.ContinueOnError || o.ContinueOnError
		return f
	case Tar:
		f.ContinueOnError = f.ContinueOnError || o.ContinueOnError
		return f
	case Gz:
		f.Multithreaded = f.Multithreaded || o.Multithreaded
		return f
	case Zstd:
		if f.DecoderOptions == nil && !o.Multithreaded {
			f.DecoderOptions = []zstd.DOption{zstd.WithDecoderConcurrency(1)}
		}
		return f
	case CompressedArchive:
		f.Compression = o.configure(f.Compression).(Compression)
		f.Archival = o.configure(f.Archival).(Archival)
		return f
	}
	return format
}

// Filesystem is a loaded archive ready to be served: the Dispatcher for
// its tree plus the open container file backing its reads.
type Filesystem struct {
	*Dispatcher

	// Format is the format the container was loaded as.
	Format Format

	// Archive is the loaded container. Its concrete type depends on the
	// format; PBO containers implement PropertyReader.
	Archive ArchiveReader

	file *os.File
}

// Open loads the archive at path: it opens the container once, identifies
// its format, reads its entry table and builds the tree. Errors that keep
// the archive from being read are joined with ErrArchiveLoad; errors in the
// archive's structure satisfy errors.Is(err, ErrInvalidStructure). On
// error nothing is left open.
func Open(ctx context.Context, path string, opts OpenOptions) (*Filesystem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadError(path, err)
	}
	fsys, err := load(ctx, f, path, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return fsys, nil
}

func load(ctx context.Context, f *os.File, path string, opts OpenOptions) (*Filesystem, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, loadError(path, err)
	}
	if info.IsDir() {
		return nil, loadError(path, errors.New("is a directory"))
	}
	source := io.NewSectionReader(f, 0, info.Size())

	format := opts.Format
	if format == nil {
		format, err = Identify(ctx, filepath.Base(path), source)
		if err != nil {
			return nil, loadError(path, err)
		}
	}
	format = opts.configure(format)

	var loader Loader
	switch ff := format.(type) {
	case Archival:
		loader = ff
	case Compression:
		loader = SingleFile{
			Compression: ff,
			FileName:    singleFileName(filepath.Base(path), ff),
			ModTime:     info.ModTime(),
		}
	default:
		return nil, loadError(path, fmt.Errorf("format %s cannot be loaded", format.Extension()))
	}

	log.Debug().
		Str("archive", path).
		Str("format", format.Extension()).
		Int64("size", info.Size()).
		Msg("filesystem: loading")

	reader, err := loader.Load(ctx, source)
	if err != nil {
		return nil, loadError(path, err)
	}

	tree, err := BuildTree(reader.Entries(), opts.Clock)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("archive", path).
		Str("format", format.Extension()).
		Int("entries", len(reader.Entries())).
		Int("nodes", tree.Len()).
		Msg("filesystem: loaded")

	return &Filesystem{
		Dispatcher: NewDispatcher(tree, reader),
		Format:     format,
		Archive:    reader,
		file:       f,
	}, nil
}

// FS returns an io/fs view of the filesystem.
func (f *Filesystem) FS() *FS { return &FS{d: f.Dispatcher} }

// Close releases the archive's open decoders and the container file.
// Reads fail afterwards.
func (f *Filesystem) Close() error {
	if f.file == nil {
		return nil
	}
	var errs []error
	if c, ok := f.Archive.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, f.file.Close())
	f.file = nil
	return errors.Join(errs...)
}
