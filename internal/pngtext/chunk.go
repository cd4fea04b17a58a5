// Package pngtext reads the chunk stream of an encoded PNG and rebuilds it
// with textual metadata (tEXt chunks) inserted before the IEND terminator.
//
// All functions are pure: input buffers are never modified and every result
// is a freshly allocated slice.
package pngtext

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/starford/framegrab/internal/checksum"
)

// Signature is the fixed 8-byte header of every PNG datastream.
const Signature = "\x89PNG\r\n\x1a\n"

// Chunk types handled by this package.
const (
	TypeIHDR = "IHDR"
	TypeIEND = "IEND"
	TypeText = "tEXt"
)

// chunk framing: 4-byte length, 4-byte type, data, 4-byte CRC.
const chunkOverhead = 12

var (
	// ErrMalformed reports a buffer that is not a well-formed PNG chunk stream.
	ErrMalformed = errors.New("malformed png")
	// ErrChecksum reports a chunk whose stored CRC does not match its content.
	// It wraps ErrMalformed.
	ErrChecksum = fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	// ErrEncoding reports a text entry that cannot be stored in a tEXt chunk.
	ErrEncoding = errors.New("unencodable text entry")
)

// Chunk is one length-prefixed, checksummed record of a PNG stream.
type Chunk struct {
	Type   string
	Length uint32
	Data   []byte
	CRC    uint32
}

// Option tunes Parse and Embed.
type Option func(*options)

type options struct {
	verifyChecksums bool
}

// WithVerifyChecksums makes parsing recompute every chunk CRC and reject the
// buffer with ErrChecksum on the first mismatch. By default stored CRCs are
// trusted and forwarded unchanged.
func WithVerifyChecksums() Option {
	return func(o *options) {
		o.verifyChecksums = true
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// IsPNG reports whether buf starts with the PNG signature.
func IsPNG(buf []byte) bool {
	return bytes.HasPrefix(buf, []byte(Signature))
}

// Parse returns the ordered chunks of buf, up to and including IEND.
// Bytes after IEND are ignored. Chunk data aliases buf.
func Parse(buf []byte, opts ...Option) ([]Chunk, error) {
	o := applyOptions(opts)

	if !IsPNG(buf) {
		return nil, fmt.Errorf("pngtext: parse: %w: bad signature", ErrMalformed)
	}

	var chunks []Chunk
	off := len(Signature)
	for {
		if len(buf)-off < chunkOverhead {
			if off == len(buf) {
				return nil, fmt.Errorf("pngtext: parse: %w: missing %s", ErrMalformed, TypeIEND)
			}
			return nil, fmt.Errorf("pngtext: parse: %w: truncated chunk header at offset %d", ErrMalformed, off)
		}

		length := binary.BigEndian.Uint32(buf[off : off+4])
		typ := string(buf[off+4 : off+8])
		// compare in uint64 so a huge length cannot wrap around
		if uint64(length) > uint64(len(buf)-off-chunkOverhead) {
			return nil, fmt.Errorf("pngtext: parse: %w: %s chunk at offset %d declares %d bytes, %d remain",
				ErrMalformed, typ, off, length, len(buf)-off-chunkOverhead)
		}

		dataStart := off + 8
		dataEnd := dataStart + int(length)
		c := Chunk{
			Type:   typ,
			Length: length,
			Data:   buf[dataStart:dataEnd],
			CRC:    binary.BigEndian.Uint32(buf[dataEnd : dataEnd+4]),
		}
		if o.verifyChecksums {
			if want := checksum.ChunkCRC(c.Type, c.Data); want != c.CRC {
				return nil, fmt.Errorf("pngtext: parse: %w: %s chunk at offset %d stores %#08x, computed %#08x",
					ErrChecksum, typ, off, c.CRC, want)
			}
		}
		chunks = append(chunks, c)
		off = dataEnd + 4

		if typ == TypeIEND {
			return chunks, nil
		}
	}
}
