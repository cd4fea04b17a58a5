package api

import "github.com/starford/framegrab/internal/captureservice"

// Response headers set on tagged frames.
const (
	HeaderCaptureID        = "X-Capture-ID"
	HeaderMetadataEmbedded = "X-Metadata-Embedded"
	HeaderMetadataError    = "X-Metadata-Error"
)

// InspectResponse is the body of POST /api/inspect.
type InspectResponse = captureservice.Inspection
