package mcpserver

// MetadataContract describes the text chunks written into tagged frames.
const MetadataContract = `# Frame Metadata Contract

Tagged frames are ordinary PNG files with seven ` + "`tEXt`" + ` chunks inserted
directly before ` + "`IEND`" + `. Every other chunk is kept byte for byte.

## Keys

Keys always appear in this order. Each chunk holds ` + "`key NUL value`" + `.

| Key | Value |
|-----|-------|
| ` + "`Source`" + ` | Video file name, or ` + "`Unknown`" + ` |
| ` + "`CaptureTime`" + ` | Playback position in seconds, shortest decimal form (` + "`12.5`" + `) |
| ` + "`Duration`" + ` | Video length in seconds |
| ` + "`FPS`" + ` | Frame rate (` + "`29.97`" + `) |
| ` + "`Dimensions`" + ` | ` + "`WIDTHxHEIGHT`" + ` (` + "`1920x1080`" + `) |
| ` + "`ExportedAt`" + ` | ISO-8601 UTC timestamp with milliseconds |
| ` + "`VideoMetadata`" + ` | JSON object, see below |

## VideoMetadata

` + "```" + `json
{
  "source": "demo.mp4",
  "captureTime": 12.5,
  "duration": 60,
  "fps": 30,
  "width": 1920,
  "height": 1080,
  "exportedAt": "2025-01-02T03:04:05.678Z"
}
` + "```" + `

- ` + "`source`" + ` is omitted when the video has no name.
- Numbers are JSON numbers, never strings.

## Rules

1. Keys longer than 79 bytes are truncated. Keys are printable ASCII.
2. Values are UTF-8.
3. If a frame cannot be parsed it is delivered unchanged and untagged.
4. Frames are named ` + "`fliqer_frame_<m><ss>.png`" + ` after the capture position (` + "`1:25`" + ` -> ` + "`fliqer_frame_125.png`" + `).
`
