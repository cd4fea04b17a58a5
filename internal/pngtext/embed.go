package pngtext

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/starford/framegrab/internal/checksum"
)

// MaxKeyLen is the longest keyword a tEXt chunk may carry.
const MaxKeyLen = 79

// TextEntry is one keyword/value pair of textual metadata.
type TextEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Embed parses buf and returns a new PNG buffer with one tEXt chunk per entry
// inserted directly before IEND, in the order given. With no entries the
// output of a well-formed buffer is byte-identical to it.
func Embed(buf []byte, entries []TextEntry, opts ...Option) ([]byte, error) {
	chunks, err := Parse(buf, opts...)
	if err != nil {
		return nil, err
	}
	return Serialize(chunks, entries)
}

// Serialize writes the signature and chunks, inserting the text entries as a
// contiguous block before IEND. Original chunks keep their stored CRC.
// Chunks without an IEND are rejected with ErrMalformed.
func Serialize(chunks []Chunk, entries []TextEntry) ([]byte, error) {
	if !hasIEND(chunks) {
		return nil, fmt.Errorf("pngtext: %w: no IEND chunk", ErrMalformed)
	}
	extra := make([]Chunk, 0, len(entries))
	for _, e := range entries {
		c, err := NewTextChunk(e)
		if err != nil {
			return nil, err
		}
		extra = append(extra, c)
	}

	size := len(Signature)
	for _, c := range chunks {
		size += chunkOverhead + len(c.Data)
	}
	for _, c := range extra {
		size += chunkOverhead + len(c.Data)
	}

	out := make([]byte, 0, size)
	out = append(out, Signature...)
	for _, c := range chunks {
		if c.Type == TypeIEND {
			for _, t := range extra {
				out = appendChunk(out, t)
			}
		}
		out = appendChunk(out, c)
	}
	return out, nil
}

// NewTextChunk builds a tEXt chunk: key (truncated to MaxKeyLen), a NUL
// separator, then the value bytes.
func NewTextChunk(e TextEntry) (Chunk, error) {
	key := e.Key
	if len(key) > MaxKeyLen {
		key = key[:MaxKeyLen]
	}
	if err := validateKey(key); err != nil {
		return Chunk{}, err
	}
	if !utf8.ValidString(e.Value) {
		return Chunk{}, fmt.Errorf("pngtext: %w: value for %q is not valid UTF-8", ErrEncoding, key)
	}

	data := make([]byte, 0, len(key)+1+len(e.Value))
	data = append(data, key...)
	data = append(data, 0)
	data = append(data, e.Value...)

	return Chunk{
		Type:   TypeText,
		Length: uint32(len(data)),
		Data:   data,
		CRC:    checksum.ChunkCRC(TypeText, data),
	}, nil
}

func hasIEND(chunks []Chunk) bool {
	for _, c := range chunks {
		if c.Type == TypeIEND {
			return true
		}
	}
	return false
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("pngtext: %w: empty key", ErrEncoding)
	}
	for i := 0; i < len(key); i++ {
		if b := key[i]; b < 0x20 || b > 0x7e {
			return fmt.Errorf("pngtext: %w: key %q has byte %#02x at %d", ErrEncoding, key, b, i)
		}
	}
	return nil
}

func appendChunk(out []byte, c Chunk) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(c.Data)))
	out = append(out, c.Type...)
	out = append(out, c.Data...)
	return binary.BigEndian.AppendUint32(out, c.CRC)
}
