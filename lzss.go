package archivefs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	errLZSSTruncated = errors.New("lzss: compressed data truncated")
	errLZSSReference = errors.New("lzss: back-reference past start of output")
)

// lzssMaxOutput is the most output n bytes of LZSS data can produce: a
// flag byte and eight back-references of 18 bytes each take 17 bytes.
func lzssMaxOutput(n int64) int64 {
	return (n/17 + 1) * 8 * 18
}

// decompressLZSS expands the LZSS payload src into exactly size bytes. The
// stream is a sequence of flag bytes, each followed by up to eight tokens,
// read least significant bit first: a set bit is a literal byte, a clear
// bit a two-byte back-reference of 12-bit distance and 4-bit length (plus
// three). Distances reaching before the start of the output produce spaces.
//
// When four bytes follow the last token they are taken as a little-endian
// additive checksum of the output and verified.
func decompressLZSS(src []byte, size int) ([]byte, error) {
	out := make([]byte, 0, min(int64(size), lzssMaxOutput(int64(len(src)))))
	i := 0

	for len(out) < size {
		if i >= len(src) {
			return nil, errLZSSTruncated
		}
		flags := src[i]
		i++

		for bit := 0; bit < 8 && len(out) < size; bit++ {
			if flags&(1<<bit) != 0 {
				if i >= len(src) {
					return nil, errLZSSTruncated
				}
				out = append(out, src[i])
				i++
				continue
			}

			if i+1 >= len(src) {
				return nil, errLZSSTruncated
			}
			b1, b2 := int(src[i]), int(src[i+1])
			i += 2

			rpos := len(out) - (b1 | (b2&0xF0)<<4)
			rlen := b2&0x0F + 3
			if rpos >= len(out) {
				return nil, errLZSSReference
			}
			if rlen > size-len(out) {
				rlen = size - len(out)
			}

			for ; rlen > 0 && rpos < 0; rlen-- {
				out = append(out, ' ')
				rpos++
			}
			// byte by byte: the source range may overlap what is being written
			for ; rlen > 0; rlen-- {
				out = append(out, out[rpos])
				rpos++
			}
		}
	}

	if len(src)-i >= 4 {
		want := binary.LittleEndian.Uint32(src[i:])
		var got uint32
		for _, b := range out {
			got += uint32(b)
		}
		if got != want {
			return nil, fmt.Errorf("lzss: checksum mismatch: computed %#08x, stored %#08x", got, want)
		}
	}

	return out, nil
}
