// Package capture assembles frame provenance into PNG text entries and
// applies the best-effort tagging policy: a capture is always delivered,
// with metadata when embedding succeeds and untouched otherwise.
package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/starford/framegrab/internal/apperr"
	"github.com/starford/framegrab/internal/models"
	"github.com/starford/framegrab/internal/pngtext"
)

// Text entry keys, in the order they are written.
const (
	KeySource        = "Source"
	KeyCaptureTime   = "CaptureTime"
	KeyDuration      = "Duration"
	KeyFPS           = "FPS"
	KeyDimensions    = "Dimensions"
	KeyExportedAt    = "ExportedAt"
	KeyVideoMetadata = "VideoMetadata"
)

// Keys lists every emitted key in order.
var Keys = []string{
	KeySource, KeyCaptureTime, KeyDuration, KeyFPS, KeyDimensions, KeyExportedAt, KeyVideoMetadata,
}

const (
	// DefaultFPS is assumed when the source frame rate is unknown.
	DefaultFPS = 30
	// UnknownSource is written as Source when the capture has none.
	UnknownSource = "Unknown"
)

// New returns a capture stamped with the export time now (UTC, millisecond precision).
func New(source string, captureTime, duration, fps float64, width, height int, now time.Time) models.Capture {
	return models.Capture{
		Source:      source,
		CaptureTime: captureTime,
		Duration:    duration,
		FPS:         fps,
		Width:       width,
		Height:      height,
		ExportedAt:  FormatTimestamp(now),
	}
}

// FormatTimestamp renders t the way exportedAt is stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(models.ISO8601Millis)
}

// Entries returns the text entries for c in their fixed order. placeholder
// replaces an empty source; UnknownSource is used when it is empty too.
func Entries(c models.Capture, placeholder string) ([]pngtext.TextEntry, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("capture: marshal metadata: %w", err)
	}

	source := c.Source
	if source == "" {
		source = placeholder
	}
	if source == "" {
		source = UnknownSource
	}

	return []pngtext.TextEntry{
		{Key: KeySource, Value: source},
		{Key: KeyCaptureTime, Value: formatNumber(c.CaptureTime)},
		{Key: KeyDuration, Value: formatNumber(c.Duration)},
		{Key: KeyFPS, Value: formatNumber(c.FPS)},
		{Key: KeyDimensions, Value: fmt.Sprintf("%dx%d", c.Width, c.Height)},
		{Key: KeyExportedAt, Value: c.ExportedAt},
		{Key: KeyVideoMetadata, Value: string(raw)},
	}, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Result is the outcome of Tag. PNG is always deliverable.
type Result struct {
	PNG      []byte
	Embedded bool
	Err      error
}

// Tagger embeds capture metadata into encoded frames.
type Tagger struct {
	logger      *slog.Logger
	placeholder string
	opts        []pngtext.Option
}

// TaggerOption configures a Tagger.
type TaggerOption func(*Tagger)

// WithLogger sets the logger used to report embedding failures.
func WithLogger(l *slog.Logger) TaggerOption {
	return func(t *Tagger) {
		t.logger = l
	}
}

// WithPlaceholder sets the Source value written for captures without one.
func WithPlaceholder(s string) TaggerOption {
	return func(t *Tagger) {
		t.placeholder = s
	}
}

// WithVerifyChecksums rejects input frames whose chunk CRCs do not match.
func WithVerifyChecksums() TaggerOption {
	return func(t *Tagger) {
		t.opts = append(t.opts, pngtext.WithVerifyChecksums())
	}
}

// NewTagger creates a Tagger.
func NewTagger(opts ...TaggerOption) *Tagger {
	t := &Tagger{logger: slog.Default(), placeholder: UnknownSource}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Embed validates c and returns png with its metadata embedded. Unlike Tag
// it reports failure instead of falling back.
func (t *Tagger) Embed(png []byte, c models.Capture) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidCapture, err)
	}
	entries, err := Entries(c, t.placeholder)
	if err != nil {
		return nil, err
	}
	out, err := pngtext.Embed(png, entries, t.opts...)
	if err != nil {
		return nil, fmt.Errorf("capture: embed: %w", err)
	}
	return out, nil
}

// Tag embeds c into png. Any failure is logged and the original bytes are
// returned unmodified.
func (t *Tagger) Tag(png []byte, c models.Capture) Result {
	out, err := t.Embed(png, c)
	if err != nil {
		t.logger.Warn("capture: metadata not embedded, delivering original frame",
			slog.String("source", c.Source),
			slog.String("error", err.Error()))
		return Result{PNG: png, Err: err}
	}
	return Result{PNG: out, Embedded: true}
}

// Extract parses png and recovers the capture stored in VideoMetadata along
// with every text entry. It returns apperr.ErrNotFound when the frame carries
// no VideoMetadata entry.
func Extract(png []byte) (*models.Capture, []pngtext.TextEntry, error) {
	chunks, err := pngtext.Parse(png)
	if err != nil {
		return nil, nil, err
	}
	entries := pngtext.TextEntries(chunks)
	for _, e := range entries {
		if e.Key != KeyVideoMetadata {
			continue
		}
		var c models.Capture
		if err := json.Unmarshal([]byte(e.Value), &c); err != nil {
			return nil, entries, fmt.Errorf("capture: decode %s: %w", KeyVideoMetadata, err)
		}
		return &c, entries, nil
	}
	return nil, entries, apperr.ErrNotFound
}

// IsMalformed reports whether err came from an unparseable or unencodable frame.
func IsMalformed(err error) bool {
	return errors.Is(err, pngtext.ErrMalformed) || errors.Is(err, pngtext.ErrEncoding)
}
