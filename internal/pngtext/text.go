package pngtext

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Header holds the IHDR fields framegrab cares about.
type Header struct {
	Width     int
	Height    int
	BitDepth  int
	ColorType int
}

// DecodeText splits a tEXt chunk at its first NUL into key and value.
func DecodeText(c Chunk) (TextEntry, error) {
	if c.Type != TypeText {
		return TextEntry{}, fmt.Errorf("pngtext: decode text: %w: chunk type %s", ErrMalformed, c.Type)
	}
	i := bytes.IndexByte(c.Data, 0)
	if i < 0 {
		return TextEntry{}, fmt.Errorf("pngtext: decode text: %w: no keyword separator", ErrMalformed)
	}
	return TextEntry{Key: string(c.Data[:i]), Value: string(c.Data[i+1:])}, nil
}

// TextEntries returns the decodable tEXt entries of chunks in stream order.
func TextEntries(chunks []Chunk) []TextEntry {
	var out []TextEntry
	for _, c := range chunks {
		if c.Type != TypeText {
			continue
		}
		if e, err := DecodeText(c); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// ReadHeader decodes the IHDR chunk, which must come first.
func ReadHeader(chunks []Chunk) (Header, error) {
	if len(chunks) == 0 || chunks[0].Type != TypeIHDR {
		return Header{}, fmt.Errorf("pngtext: read header: %w: first chunk is not %s", ErrMalformed, TypeIHDR)
	}
	d := chunks[0].Data
	if len(d) < 13 {
		return Header{}, fmt.Errorf("pngtext: read header: %w: %s is %d bytes", ErrMalformed, TypeIHDR, len(d))
	}
	return Header{
		Width:     int(binary.BigEndian.Uint32(d[0:4])),
		Height:    int(binary.BigEndian.Uint32(d[4:8])),
		BitDepth:  int(d[8]),
		ColorType: int(d[9]),
	}, nil
}
