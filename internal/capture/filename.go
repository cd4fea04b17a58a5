package capture

import (
	"fmt"
	"math"
	"strings"
)

// DefaultFramePrefix starts every generated frame file name.
const DefaultFramePrefix = "fliqer_frame_"

// FormatTime renders a playback position as m:ss. Negative and non-finite
// positions render as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	m := int(seconds / 60)
	s := int(math.Mod(seconds, 60))
	return fmt.Sprintf("%d:%02d", m, s)
}

// FrameFilename names a frame captured at the given position, e.g.
// fliqer_frame_125.png for 1:25. An empty prefix uses DefaultFramePrefix.
func FrameFilename(prefix string, seconds float64) string {
	if prefix == "" {
		prefix = DefaultFramePrefix
	}
	return prefix + strings.Replace(FormatTime(seconds), ":", "", 1) + ".png"
}
