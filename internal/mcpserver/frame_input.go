package mcpserver

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

const maxFrameSize = 32 << 20 // 32 MB

// decodeFrame accepts plain base64 or a base64 data URI and returns the PNG
// bytes it carries.
func decodeFrame(raw string) ([]byte, error) {
	encoded := strings.TrimSpace(raw)
	if strings.HasPrefix(encoded, "data:") {
		rest := strings.TrimPrefix(encoded, "data:")
		commaIdx := strings.Index(rest, ",")
		if commaIdx < 0 {
			return nil, fmt.Errorf("invalid data URI: missing comma separator")
		}
		meta := rest[:commaIdx]
		if !strings.Contains(meta, ";base64") {
			return nil, fmt.Errorf("only base64 data URIs are supported")
		}
		if mime := strings.Split(meta, ";")[0]; mime != "image/png" {
			return nil, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
		}
		encoded = rest[commaIdx+1:]
	}

	if base64.StdEncoding.DecodedLen(len(encoded)) > maxFrameSize {
		return nil, fmt.Errorf("frame too large (max %d bytes)", maxFrameSize)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	if detected := http.DetectContentType(data); detected != "image/png" {
		return nil, fmt.Errorf("frame is not a PNG (detected: %s)", detected)
	}
	return data, nil
}
