package archivefs

import (
	"errors"
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// openStreams is how many entry decoders a streamCache keeps open.
const openStreams = 8

// streamCache is the ArchiveReader of formats whose members are decoded
// from their start. It keeps the decoders of the most recently read
// entries open where the last read stopped, so an entry read front to back
// is decoded once. Entries read in place are not cached.
type streamCache struct {
	entryList
	streams *lru.Cache[*Entry, *openStream]
}

func newStreamCache(entries entryList) (*streamCache, error) {
	streams, err := lru.NewWithEvict[*Entry, *openStream](openStreams, func(_ *Entry, s *openStream) {
		s.close()
	})
	if err != nil {
		return nil, err
	}
	return &streamCache{entryList: entries, streams: streams}, nil
}

func (c *streamCache) ReadAt(e *Entry, p []byte, off int64) (int, error) {
	if e.open == nil {
		return e.readAt(p, off)
	}
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %d", e.Name, off)
	}
	if off >= e.DataSize || len(p) == 0 {
		return 0, nil
	}
	if remaining := e.DataSize - off; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	s, ok := c.streams.Get(e)
	if !ok {
		s = &openStream{entry: e}
		if prev, found, _ := c.streams.PeekOrAdd(e, s); found {
			s = prev
		}
	}
	return s.readAt(p, off)
}

// Close closes every open decoder.
func (c *streamCache) Close() error {
	c.streams.Purge()
	return nil
}

// openStream is an entry's decoder and how far into the payload it is.
type openStream struct {
	entry *Entry

	mu     sync.Mutex
	rc     io.ReadCloser
	pos    int64
	closed bool
}

// readAt continues from the current position when off is at or past it
// and reopens the entry when off is behind it. p must lie within the
// payload.
func (s *openStream) readAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		// evicted while this read waited for it
		return s.entry.readAt(p, off)
	}

	if s.rc != nil && off < s.pos {
		log.Debug().
			Str("name", s.entry.Name).
			Int64("offset", off).
			Int64("position", s.pos).
			Msg("stream cache: read behind decoder, reopening")
		s.reset()
	}
	if s.rc == nil {
		rc, err := s.entry.open()
		if err != nil {
			return 0, fmt.Errorf("%s: opening payload: %w", s.entry.Name, err)
		}
		s.rc, s.pos = rc, 0
	}

	if off > s.pos {
		n, err := io.CopyN(io.Discard, s.rc, off-s.pos)
		s.pos += n
		if err != nil {
			s.reset()
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			return 0, fmt.Errorf("%s: seeking to %d: %w", s.entry.Name, off, err)
		}
	}

	n, err := io.ReadFull(s.rc, p)
	s.pos += int64(n)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	} else if err != nil {
		s.reset()
	}
	return n, err
}

// reset closes the decoder; the next read reopens the entry. Callers hold mu.
func (s *openStream) reset() {
	if s.rc == nil {
		return
	}
	if err := s.rc.Close(); err != nil {
		log.Debug().Err(err).Str("name", s.entry.Name).Msg("stream cache: closing decoder")
	}
	s.rc, s.pos = nil, 0
}

func (s *openStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.closed = true
}

// Interface guards
var (
	_ ArchiveReader = (*streamCache)(nil)
	_ io.Closer     = (*streamCache)(nil)
)
