// Package captureservice tags and inspects frames for the API and MCP layers.
package captureservice

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/framegrab/internal/apperr"
	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/checksum"
	"github.com/starford/framegrab/internal/models"
	"github.com/starford/framegrab/internal/pngtext"
)

// EventFunc is notified after every tagging attempt. err is nil when
// metadata was embedded.
type EventFunc func(id, path string, err error)

// TaggedFrame is the result of tagging one frame.
type TaggedFrame struct {
	ID       string
	Filename string
	PNG      []byte
	Embedded bool
	Checksum string
	Err      error
}

// ChunkInfo describes one chunk of an inspected frame.
type ChunkInfo struct {
	Type   string `json:"type"`
	Length uint32 `json:"length"`
	CRC    string `json:"crc"`
}

// Inspection is the metadata view of a frame.
type Inspection struct {
	Width   int                 `json:"width"`
	Height  int                 `json:"height"`
	Chunks  []ChunkInfo         `json:"chunks"`
	Text    []pngtext.TextEntry `json:"text"`
	Capture *models.Capture     `json:"capture"`
}

// Service coordinates tagging and inspection.
type Service struct {
	tagger  *capture.Tagger
	prefix  string
	onEvent EventFunc
}

// NewService creates a new capture service. onEvent may be nil.
func NewService(tagger *capture.Tagger, filenamePrefix string, onEvent EventFunc) *Service {
	return &Service{tagger: tagger, prefix: filenamePrefix, onEvent: onEvent}
}

// Tag validates c and embeds it into png. The returned frame always carries
// deliverable bytes; Err reports why metadata could not be embedded.
// Invalid captures are rejected with apperr.ErrInvalidCapture.
func (s *Service) Tag(_ context.Context, png []byte, c models.Capture) (*TaggedFrame, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidCapture, err)
	}

	res := s.tagger.Tag(png, c)
	frame := &TaggedFrame{
		ID:       uuid.New().String(),
		Filename: capture.FrameFilename(s.prefix, c.CaptureTime),
		PNG:      res.PNG,
		Embedded: res.Embedded,
		Checksum: checksum.Sum(res.PNG),
		Err:      res.Err,
	}
	if s.onEvent != nil {
		s.onEvent(frame.ID, frame.Filename, res.Err)
	}
	return frame, nil
}

// Dimensions reads width and height from the frame header.
func (s *Service) Dimensions(png []byte) (int, int, error) {
	chunks, err := pngtext.Parse(png)
	if err != nil {
		return 0, 0, err
	}
	h, err := pngtext.ReadHeader(chunks)
	if err != nil {
		return 0, 0, err
	}
	return h.Width, h.Height, nil
}

// Inspect lists the chunks and text metadata of png. Capture is nil when the
// frame carries no VideoMetadata.
func (s *Service) Inspect(_ context.Context, png []byte) (*Inspection, error) {
	chunks, err := pngtext.Parse(png)
	if err != nil {
		return nil, err
	}
	out := &Inspection{
		Chunks: make([]ChunkInfo, len(chunks)),
		Text:   nonNilSlice(pngtext.TextEntries(chunks)),
	}
	if h, err := pngtext.ReadHeader(chunks); err == nil {
		out.Width, out.Height = h.Width, h.Height
	}
	for i, c := range chunks {
		out.Chunks[i] = ChunkInfo{Type: c.Type, Length: c.Length, CRC: fmt.Sprintf("%08x", c.CRC)}
	}

	// A missing or foreign VideoMetadata entry still leaves the text listing.
	if c, _, err := capture.Extract(png); err == nil {
		out.Capture = c
	}
	return out, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
