// Package models defines the domain types for framegrab.
package models

import (
	"errors"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ISO8601Millis is the layout of exportedAt: UTC with millisecond precision.
const ISO8601Millis = "2006-01-02T15:04:05.000Z07:00"

// Capture is the provenance of one grabbed frame. Its JSON form is the
// VideoMetadata text entry; field names are part of the external format.
type Capture struct {
	Source      string  `json:"source,omitempty"`
	CaptureTime float64 `json:"captureTime"`
	Duration    float64 `json:"duration"`
	FPS         float64 `json:"fps"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ExportedAt  string  `json:"exportedAt"`
}

// Validate checks the capture before it is embedded.
func (c *Capture) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CaptureTime, validation.By(finite), validation.Min(0.0)),
		validation.Field(&c.Duration, validation.By(finite), validation.Min(0.0)),
		validation.Field(&c.FPS, validation.Required, validation.By(finite), validation.Min(0.0).Exclusive()),
		validation.Field(&c.Width, validation.Required, validation.Min(1)),
		validation.Field(&c.Height, validation.Required, validation.Min(1)),
		validation.Field(&c.ExportedAt, validation.Required, validation.Date(time.RFC3339)),
	)
}

// finite rejects NaN and infinities, which have no JSON encoding.
func finite(value interface{}) error {
	f, _ := value.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

// FrameFile is a PNG frame found in a capture directory.
type FrameFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
