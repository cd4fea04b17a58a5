package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/framegrab/internal"
	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/captureservice"
	"github.com/starford/framegrab/internal/mcpserver"
	"github.com/starford/framegrab/internal/models"
	"github.com/starford/framegrab/internal/storage"
)

// stderrLogger keeps stdout free for command output and the MCP protocol.
func stderrLogger(cfg *internal.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
}

func newService(cmd *cli.Command) (*internal.Config, *capture.Tagger, *captureservice.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := stderrLogger(cfg)
	slog.SetDefault(logger)
	tagger := internal.NewTagger(cfg.Capture, logger)
	return cfg, tagger, captureservice.NewService(tagger, cfg.Capture.FramePrefix, nil), nil
}

func embedCommand() *cli.Command {
	return &cli.Command{
		Name:      "embed",
		Usage:     "Tag one PNG frame and write the result",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "Input PNG frame", Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (default: frame name next to the input)"},
			&cli.StringFlag{Name: "source", Usage: "Video file name"},
			&cli.FloatFlag{Name: "time", Usage: "Capture position in seconds"},
			&cli.FloatFlag{Name: "duration", Usage: "Video length in seconds"},
			&cli.FloatFlag{Name: "fps", Usage: "Frame rate", Value: capture.DefaultFPS},
			&cli.IntFlag{Name: "width", Usage: "Frame width (default: from the PNG header)"},
			&cli.IntFlag{Name: "height", Usage: "Frame height (default: from the PNG header)"},
			&cli.StringFlag{Name: "exported-at", Usage: "ISO-8601 export time (default: now)"},
			&cli.BoolFlag{Name: "strict", Usage: "Fail instead of writing the original frame when tagging fails"},
		},
		Action: embed,
	}
}

func embed(ctx context.Context, cmd *cli.Command) error {
	cfg, tagger, svc, err := newService(cmd)
	if err != nil {
		return err
	}

	in := cmd.String("in")
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}

	c := models.Capture{
		Source:      cmd.String("source"),
		CaptureTime: cmd.Float("time"),
		Duration:    cmd.Float("duration"),
		FPS:         cmd.Float("fps"),
		Width:       int(cmd.Int("width")),
		Height:      int(cmd.Int("height")),
		ExportedAt:  cmd.String("exported-at"),
	}
	if c.Width == 0 || c.Height == 0 {
		w, h, dimErr := svc.Dimensions(data)
		if dimErr != nil && cmd.Bool("strict") {
			return fmt.Errorf("read frame header: %w", dimErr)
		}
		if c.Width == 0 {
			c.Width = w
		}
		if c.Height == 0 {
			c.Height = h
		}
	}
	if c.ExportedAt == "" {
		c.ExportedAt = capture.FormatTimestamp(time.Now())
	}

	var (
		out      []byte
		embedded bool
		filename string
	)
	if cmd.Bool("strict") {
		if out, err = tagger.Embed(data, c); err != nil {
			return err
		}
		embedded = true
		filename = capture.FrameFilename(cfg.Capture.FramePrefix, c.CaptureTime)
	} else {
		frame, tagErr := svc.Tag(ctx, data, c)
		if tagErr != nil {
			// An unusable capture record still yields the untouched frame.
			out = data
			filename = capture.FrameFilename(cfg.Capture.FramePrefix, c.CaptureTime)
			slog.Warn("embed: capture rejected, writing original frame", slog.String("error", tagErr.Error()))
		} else {
			out, embedded, filename = frame.PNG, frame.Embedded, frame.Filename
		}
	}

	dest := cmd.String("out")
	if dest == "" {
		dest = filepath.Join(filepath.Dir(in), filename)
	}
	if err := writeFrame(dest, out); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s embedded=%t\n", dest, embedded)
	return nil
}

// writeFrame writes data atomically through a storage root at dest's directory.
func writeFrame(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	root, err := storage.NewFS(dir)
	if err != nil {
		return err
	}
	return root.Write(filepath.Base(dest), data)
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the chunks and capture metadata of a PNG frame as JSON",
		ArgsUsage: "<frame.png>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return errors.New("inspect: frame path required")
			}
			_, _, svc, err := newService(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read frame: %w", err)
			}
			insp, err := svc.Inspect(ctx, data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(insp)
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the frame tagging tools over MCP stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, _, svc, err := newService(cmd)
			if err != nil {
				return err
			}
			return mcpserver.New(svc).ServeStdio()
		},
	}
}
