// Package watch tags frames dropped into an inbox directory.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/models"
	"github.com/starford/framegrab/internal/pngtext"
	"github.com/starford/framegrab/internal/storage"
)

// DefaultSuffix is appended to the stem of every output file.
const DefaultSuffix = "_tagged"

const debounce = 200 * time.Millisecond

// EventCallback is called after every processed frame. err is nil when
// metadata was embedded.
type EventCallback func(id, path string, err error)

// Processor tags inbox frames and writes them to the outbox.
type Processor struct {
	inbox        storage.Provider
	outbox       storage.Provider
	tagger       *capture.Tagger
	suffix       string
	outDir       string // outbox relative to the inbox; empty when outside it
	removeSource bool
	logger       *slog.Logger
	cb           EventCallback
	now          func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithSuffix sets the output file suffix.
func WithSuffix(s string) Option {
	return func(p *Processor) {
		if s != "" {
			p.suffix = s
		}
	}
}

// WithRemoveSource deletes the inbox frame and its sidecar once the output is written.
func WithRemoveSource(remove bool) Option {
	return func(p *Processor) { p.removeSource = remove }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithCallback sets the per-frame event callback.
func WithCallback(cb EventCallback) Option {
	return func(p *Processor) { p.cb = cb }
}

// NewProcessor creates a Processor reading from inbox and writing to outbox.
// They may be the same directory.
func NewProcessor(inbox, outbox storage.Provider, tagger *capture.Tagger, opts ...Option) *Processor {
	p := &Processor{
		inbox:  inbox,
		outbox: outbox,
		tagger: tagger,
		suffix: DefaultSuffix,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if rel, err := filepath.Rel(inbox.Root(), outbox.Root()); err == nil &&
		rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		p.outDir = rel
	}
	return p
}

// OutputName maps an inbox path to its outbox path: a/frame.png -> a/frame_tagged.png.
func (p *Processor) OutputName(rel string) string {
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + p.suffix + ext
}

// IsOutput reports whether the inbox path rel is a file this processor
// writes. Only an outbox at or below the inbox can hold such files, so with
// separate directories every inbox frame is an input.
func (p *Processor) IsOutput(rel string) bool {
	if p.outDir == "" {
		return false
	}
	if p.outDir != "." {
		r, err := filepath.Rel(p.outDir, rel)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return false
		}
		rel = r
	}
	return strings.HasSuffix(strings.TrimSuffix(rel, filepath.Ext(rel)), p.suffix)
}

func sidecarName(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + ".json"
}

// Process tags one inbox frame. The output is written even when metadata
// could not be embedded, carrying the original bytes.
func (p *Processor) Process(rel string) error {
	data, err := p.inbox.Read(rel)
	if err != nil {
		return err
	}

	c := p.captureFor(rel, data)
	res := p.tagger.Tag(data, c)

	out := p.OutputName(rel)
	if err := p.outbox.Write(out, res.PNG); err != nil {
		return fmt.Errorf("watch: write %s: %w", out, err)
	}

	if p.removeSource {
		if err := p.inbox.Delete(rel); err != nil {
			p.logger.Warn("watcher: remove source failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		if side := sidecarName(rel); p.inbox.Exists(side) {
			_ = p.inbox.Delete(side)
		}
	}

	id := uuid.New().String()
	if res.Embedded {
		p.logger.Info("watcher: tagged", slog.String("id", id), slog.String("path", out))
	} else {
		p.logger.Warn("watcher: copied untagged", slog.String("id", id), slog.String("path", out), slog.String("error", res.Err.Error()))
	}
	if p.cb != nil {
		p.cb(id, out, res.Err)
	}
	return nil
}

// captureFor builds the capture record for rel from its sidecar, filling
// gaps from the frame header and the file name.
func (p *Processor) captureFor(rel string, data []byte) models.Capture {
	var c models.Capture
	if side := sidecarName(rel); p.inbox.Exists(side) {
		raw, err := p.inbox.Read(side)
		if err == nil {
			err = json.Unmarshal(raw, &c)
		}
		if err != nil {
			p.logger.Warn("watcher: sidecar ignored", slog.String("path", side), slog.String("error", err.Error()))
			c = models.Capture{}
		}
	}

	if c.Source == "" {
		c.Source = path.Base(filepath.ToSlash(rel))
	}
	if c.FPS == 0 {
		c.FPS = capture.DefaultFPS
	}
	if c.Width == 0 || c.Height == 0 {
		if chunks, err := pngtext.Parse(data); err == nil {
			if h, err := pngtext.ReadHeader(chunks); err == nil {
				if c.Width == 0 {
					c.Width = h.Width
				}
				if c.Height == 0 {
					c.Height = h.Height
				}
			}
		}
	}
	if c.ExportedAt == "" {
		c.ExportedAt = capture.FormatTimestamp(p.now())
	}
	return c
}

// Pending lists inbox frames that have no output yet.
func (p *Processor) Pending() ([]string, error) {
	frames, err := p.inbox.List("")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range frames {
		if p.IsOutput(f.Path) || p.outbox.Exists(p.OutputName(f.Path)) {
			continue
		}
		out = append(out, f.Path)
	}
	return out, nil
}

// Scan processes every pending inbox frame and returns how many were written.
func (p *Processor) Scan() (int, error) {
	pending, err := p.Pending()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rel := range pending {
		if err := p.Process(rel); err != nil {
			p.logger.Warn("watcher: process failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		n++
	}
	return n, nil
}

// Watch runs an initial Scan, then processes frames created or written in
// the inbox until ctx is cancelled. Events are debounced so a frame is
// handled once its writer has gone quiet.
func Watch(ctx context.Context, p *Processor) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := p.inbox.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	if n, err := p.Scan(); err != nil {
		p.logger.Warn("watcher: initial scan failed", slog.String("error", err.Error()))
	} else {
		p.logger.Info("watcher: initial scan", slog.Int("processed", n))
	}
	p.logger.Info("watcher: started", slog.String("inbox", root), slog.String("outbox", p.outbox.Root()))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			p.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for rel := range pending {
				delete(pending, rel)
				if !p.inbox.Exists(rel) {
					continue
				}
				if err := p.Process(rel); err != nil {
					p.logger.Warn("watcher: process failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						p.logger.Warn("watcher: add new dir failed", slog.String("path", ev.Name), slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !storage.IsPNGName(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || p.IsOutput(rel) {
				continue
			}
			schedule(rel)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(dir string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(dir)
		}
		return nil
	})
}
