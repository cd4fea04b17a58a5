// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes frame tagging tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/captureservice"
	"github.com/starford/framegrab/internal/models"
)

const metadataKeysURI = "framegrab://metadata-keys"

// Server wraps the MCP server with framegrab tools.
type Server struct {
	mcp *server.MCPServer
	svc *captureservice.Service
	now func() time.Time
}

// New creates a new MCP server with all framegrab tools registered.
func New(svc *captureservice.Service) *Server {
	s := &Server{svc: svc, now: time.Now}

	s.mcp = server.NewMCPServer(
		"Framegrab",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("tag_frame",
		mcp.WithDescription("Embed capture metadata into a PNG frame. "+
			"If the frame cannot be parsed it is returned unchanged with embedded=false. "+
			"Read the key layout via get_metadata_contract or the "+metadataKeysURI+" resource."),
		mcp.WithString("png_base64", mcp.Required(), mcp.Description("PNG bytes, base64 or a data:image/png;base64 URI")),
		mcp.WithString("source", mcp.Description("Video file name (optional)")),
		mcp.WithNumber("capture_time", mcp.Required(), mcp.Description("Playback position in seconds")),
		mcp.WithNumber("duration", mcp.Required(), mcp.Description("Video length in seconds")),
		mcp.WithNumber("fps", mcp.Description("Frame rate (default 30)")),
		mcp.WithNumber("width", mcp.Description("Frame width (default: read from the PNG header)")),
		mcp.WithNumber("height", mcp.Description("Frame height (default: read from the PNG header)")),
		mcp.WithString("exported_at", mcp.Description("ISO-8601 export time (default: now)")),
	), s.tagFrame)

	s.mcp.AddTool(mcp.NewTool("inspect_frame",
		mcp.WithDescription("List the chunks and text metadata of a PNG frame."),
		mcp.WithString("png_base64", mcp.Required(), mcp.Description("PNG bytes, base64 or a data:image/png;base64 URI")),
	), s.inspectFrame)

	s.mcp.AddTool(mcp.NewTool("get_metadata_contract",
		mcp.WithDescription("Returns the metadata keys and VideoMetadata JSON fields written into tagged frames."),
	), s.getMetadataContract)

	s.mcp.AddResource(
		mcp.NewResource(metadataKeysURI, "Frame Metadata Contract",
			mcp.WithResourceDescription("Text chunk keys and JSON fields written into tagged frames."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMetadataKeysResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type tagResult struct {
	ID        string `json:"id"`
	PNGBase64 string `json:"png_base64"`
	Embedded  bool   `json:"embedded"`
	Filename  string `json:"filename"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) tagFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("png_base64")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	png, err := decodeFrame(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	c := models.Capture{
		Source:     req.GetString("source", ""),
		FPS:        req.GetFloat("fps", capture.DefaultFPS),
		ExportedAt: req.GetString("exported_at", ""),
	}
	if c.Width, err = dimension(req, "width"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if c.Height, err = dimension(req, "height"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if c.CaptureTime, err = req.RequireFloat("capture_time"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if c.Duration, err = req.RequireFloat("duration"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if c.Width == 0 || c.Height == 0 {
		w, h, dimErr := s.svc.Dimensions(png)
		if dimErr != nil {
			return mcp.NewToolResultError("width and height are required: " + dimErr.Error()), nil
		}
		if c.Width == 0 {
			c.Width = w
		}
		if c.Height == 0 {
			c.Height = h
		}
	}
	if c.ExportedAt == "" {
		c.ExportedAt = capture.FormatTimestamp(s.now())
	}

	frame, err := s.svc.Tag(ctx, png, c)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := tagResult{
		ID:        frame.ID,
		PNGBase64: base64.StdEncoding.EncodeToString(frame.PNG),
		Embedded:  frame.Embedded,
		Filename:  frame.Filename,
	}
	if frame.Err != nil {
		res.Error = frame.Err.Error()
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// dimension reads an optional pixel size. JSON numbers arrive as float64, so
// fractional and out-of-range values are rejected here.
func dimension(req mcp.CallToolRequest, key string) (int, error) {
	f := req.GetFloat(key, 0)
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %v", key, f)
	}
	return int(f), nil
}

func (s *Server) inspectFrame(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("png_base64")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	png, err := decodeFrame(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	insp, err := s.svc.Inspect(ctx, png)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(insp, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getMetadataContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MetadataContract), nil
}

func (s *Server) readMetadataKeysResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      metadataKeysURI,
			MIMEType: "text/markdown",
			Text:     MetadataContract,
		},
	}, nil
}
