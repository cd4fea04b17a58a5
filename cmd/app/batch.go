package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/starford/framegrab/internal"
)

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Tag every pending frame in the inbox once and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "inbox", Usage: "Inbox directory (default: watch.inbox)"},
			&cli.StringFlag{Name: "outbox", Usage: "Outbox directory (default: watch.outbox)"},
		},
		Action: batch,
	}
}

func batch(ctx context.Context, cmd *cli.Command) error {
	cfg, tagger, _, err := newService(cmd)
	if err != nil {
		return err
	}
	wcfg := cfg.Watch
	if v := cmd.String("inbox"); v != "" {
		wcfg.Inbox = v
	}
	if v := cmd.String("outbox"); v != "" {
		wcfg.Outbox = v
	}

	untagged := 0
	proc, err := internal.NewWatchProcessor(wcfg, tagger, slog.Default(), func(_, _ string, err error) {
		if err != nil {
			untagged++
		}
	})
	if err != nil {
		return err
	}

	pending, err := proc.Pending()
	if err != nil {
		return fmt.Errorf("list inbox: %w", err)
	}

	bar := newProgress(len(pending), "tagging frames")
	failed := 0
	for _, rel := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := proc.Process(rel); err != nil {
			slog.Warn("batch: process failed", slog.String("path", rel), slog.String("error", err.Error()))
			failed++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Fprintf(os.Stdout, "\nprocessed=%d untagged=%d failed=%d\n", len(pending)-failed, untagged, failed)
	return ctx.Err()
}

func newProgress(max int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
