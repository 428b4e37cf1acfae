package archivefs

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

func init() {
	RegisterFormat(PBO{})
}

// Packing methods of PBO header records.
const (
	pboMethodNone uint32 = 0
	pboMethodVers uint32 = 0x56657273 // "Vers"
	pboMethodCprs uint32 = 0x43707273 // "Cprs"
	pboMethodEncr uint32 = 0x456e6372 // "Encr"
)

// decodedPayloads bounds how many decompressed PBO payloads are kept.
const decodedPayloads = 64

// PBO reads PBO containers: a table of header records followed by the
// payloads in table order, optionally followed by a SHA-1 of everything
// before it.
type PBO struct {
	// If true, the SHA-1 trailer is checked at load time and a mismatch
	// fails the load.
	VerifyChecksum bool
}

func (PBO) Extension() string { return ".pbo" }

func (p PBO) Match(_ context.Context, filename string, stream io.Reader) (MatchResult, error) {
	var mr MatchResult

	// match filename
	if filepath.Ext(strings.ToLower(filename)) == p.Extension() {
		mr.ByName = true
	}

	// match file header; only PBOs that start with a product
	// record can be recognized, the rest start with a file name
	buf, err := readAtMost(stream, len(pboHeader))
	if err != nil {
		return mr, err
	}
	mr.ByStream = bytes.Equal(buf, pboHeader)

	return mr, nil
}

// PBOHeader is the header record of one PBO entry. It is the Header of the
// entries a PBO yields.
type PBOHeader struct {
	Name         string
	Method       uint32
	OriginalSize uint32
	Reserved     uint32
	Timestamp    uint32
	DataSize     uint32

	// Offset is where the payload starts in the container.
	Offset int64
}

// Compressed reports whether the payload is LZSS-compressed.
func (h *PBOHeader) Compressed() bool {
	return h.Method == pboMethodCprs ||
		(h.Method == pboMethodNone && h.OriginalSize > h.DataSize)
}

// Property is one key/value pair of a PBO's product record, such as the
// "prefix" under which the game mounts the PBO's contents.
type Property struct {
	Key   string
	Value string
}

// PropertyReader is implemented by the ArchiveReader of PBO containers.
type PropertyReader interface {
	Properties() []Property
	Property(key string) (string, bool)
}

type pboRecord struct {
	Method       uint32
	OriginalSize uint32
	Reserved     uint32
	Timestamp    uint32
	DataSize     uint32
}

func (p PBO) Load(ctx context.Context, source *io.SectionReader) (ArchiveReader, error) {
	size := source.Size()
	br := bufio.NewReader(io.NewSectionReader(source, 0, size))

	var (
		headers    []*PBOHeader
		properties []Property
		tableSize  int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err // honor context cancellation
		}

		name, err := readCString(br)
		if err != nil {
			return nil, fmt.Errorf("pbo: reading header %d: %w", len(headers), err)
		}
		var rec pboRecord
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("pbo: reading header %d: %w", len(headers), truncated(err))
		}
		tableSize += int64(len(name)) + 1 + int64(binary.Size(rec))

		if name == "" {
			if rec.Method == pboMethodVers && len(headers) == 0 && properties == nil {
				properties, err = readProperties(br)
				if err != nil {
					return nil, fmt.Errorf("pbo: reading product record: %w", err)
				}
				for _, prop := range properties {
					tableSize += int64(len(prop.Key)) + int64(len(prop.Value)) + 2
				}
				tableSize++ // terminating empty key
				continue
			}
			break
		}

		if rec.Method == pboMethodEncr {
			return nil, fmt.Errorf("pbo: %s: encrypted entries are not supported", name)
		}
		headers = append(headers, &PBOHeader{
			Name:         name,
			Method:       rec.Method,
			OriginalSize: rec.OriginalSize,
			Reserved:     rec.Reserved,
			Timestamp:    rec.Timestamp,
			DataSize:     rec.DataSize,
		})
	}

	archive := &pboArchive{source: source, properties: properties}
	cache, err := lru.New[int64, []byte](decodedPayloads)
	if err != nil {
		return nil, err
	}
	archive.decoded = cache

	offset := tableSize
	for _, h := range headers {
		h.Offset = offset
		offset += int64(h.DataSize)
		if offset > size {
			return nil, fmt.Errorf("pbo: %s: payload ends at %d, past end of file at %d: %w",
				h.Name, offset, size, io.ErrUnexpectedEOF)
		}

		e := &Entry{
			Name:      h.Name,
			DataSize:  int64(h.DataSize),
			Timestamp: time.Unix(int64(h.Timestamp), 0),
			Header:    h,
		}
		if h.Compressed() {
			if limit := lzssMaxOutput(int64(h.DataSize)); int64(h.OriginalSize) > limit {
				return nil, fmt.Errorf("pbo: %s: original size %d exceeds the %d bytes %d compressed bytes can expand to",
					h.Name, h.OriginalSize, limit, h.DataSize)
			}
			e.DataSize = int64(h.OriginalSize)
		} else {
			e.section = io.NewSectionReader(source, h.Offset, int64(h.DataSize))
		}
		archive.entries = append(archive.entries, e)
	}

	if err := p.checkTrailer(source, offset); err != nil {
		return nil, err
	}

	log.Debug().
		Int("entries", len(archive.entries)).
		Int("properties", len(properties)).
		Int64("payload_end", offset).
		Msg("pbo: header table read")

	return archive, nil
}

// checkTrailer verifies the SHA-1 trailer that may follow the payloads at
// end, if VerifyChecksum is set.
func (p PBO) checkTrailer(source *io.SectionReader, end int64) error {
	if !p.VerifyChecksum {
		return nil
	}

	trailer := make([]byte, 1+sha1.Size)
	n, err := source.ReadAt(trailer, end)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("pbo: reading checksum: %w", err)
	}
	if n < len(trailer) || trailer[0] != 0 {
		log.Warn().
			Int64("offset", end).
			Msg("pbo: no checksum trailer to verify")
		return nil
	}

	h := sha1.New()
	if _, err := io.Copy(h, io.NewSectionReader(source, 0, end)); err != nil {
		return fmt.Errorf("pbo: computing checksum: %w", err)
	}
	if sum := h.Sum(nil); !bytes.Equal(sum, trailer[1:]) {
		return fmt.Errorf("pbo: checksum mismatch: computed %x, stored %x", sum, trailer[1:])
	}
	return nil
}

func readCString(br *bufio.Reader) (string, error) {
	s, err := br.ReadString(0)
	if err != nil {
		return "", truncated(err)
	}
	return s[:len(s)-1], nil
}

func readProperties(br *bufio.Reader) ([]Property, error) {
	properties := []Property{}
	for {
		key, err := readCString(br)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return properties, nil
		}
		value, err := readCString(br)
		if err != nil {
			return nil, err
		}
		properties = append(properties, Property{Key: key, Value: value})
	}
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

type pboArchive struct {
	entries    []*Entry
	properties []Property
	source     *io.SectionReader

	// decompressed payloads, keyed by offset
	decoded *lru.Cache[int64, []byte]
}

func (a *pboArchive) Entries() []*Entry { return a.entries }

// Properties returns the key/value pairs of the product record, in file
// order. It is empty when the PBO has no product record.
func (a *pboArchive) Properties() []Property { return a.properties }

// Property returns the value of the product record key, if present.
func (a *pboArchive) Property(key string) (string, bool) {
	for _, prop := range a.properties {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return "", false
}

func (a *pboArchive) ReadAt(e *Entry, p []byte, off int64) (int, error) {
	h, ok := e.Header.(*PBOHeader)
	if !ok || !h.Compressed() {
		return e.readAt(p, off)
	}
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %d", e.Name, off)
	}
	if off >= e.DataSize {
		return 0, nil
	}

	data, err := a.payload(h)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", e.Name, err)
	}
	return copy(p, data[off:]), nil
}

// payload returns the decompressed payload of h, decoding it on first use.
func (a *pboArchive) payload(h *PBOHeader) ([]byte, error) {
	if data, ok := a.decoded.Get(h.Offset); ok {
		return data, nil
	}

	src := make([]byte, h.DataSize)
	if _, err := a.source.ReadAt(src, h.Offset); err != nil {
		return nil, fmt.Errorf("reading compressed payload: %w", truncated(err))
	}
	data, err := decompressLZSS(src, int(h.OriginalSize))
	if err != nil {
		return nil, err
	}
	a.decoded.Add(h.Offset, data)

	log.Debug().
		Str("entry", h.Name).
		Uint32("packed", h.DataSize).
		Uint32("size", h.OriginalSize).
		Msg("pbo: payload decompressed")

	return data, nil
}

// an empty name followed by the "Vers" method
var pboHeader = []byte("\x00sreV")

// Interface guards
var (
	_ Archival       = (*PBO)(nil)
	_ ArchiveReader  = (*pboArchive)(nil)
	_ PropertyReader = (*pboArchive)(nil)
)
