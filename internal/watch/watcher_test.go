package watch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/pngtext"
	"github.com/starford/framegrab/internal/storage"
	"github.com/starford/framegrab/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProcessor(t *testing.T, opts ...Option) (string, *storage.FS, *storage.FS, *Processor) {
	t.Helper()
	inDir, inbox := testutil.TestDir(t)
	_, outbox := testutil.TestDir(t)
	tagger := capture.NewTagger(capture.WithLogger(quietLogger()))
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return inDir, inbox, outbox, NewProcessor(inbox, outbox, tagger, opts...)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestOutputName(t *testing.T) {
	_, _, _, p := newProcessor(t)
	if got := p.OutputName("a/frame.png"); got != "a/frame_tagged.png" {
		t.Errorf("OutputName = %q", got)
	}
	if p.IsOutput("frame_tagged.png") {
		t.Error("separate inbox frame classified as output")
	}
}

func TestIsOutput_OutboxInsideInbox(t *testing.T) {
	dir, inbox := testutil.TestDir(t)
	tagger := capture.NewTagger(capture.WithLogger(quietLogger()))

	same := NewProcessor(inbox, inbox, tagger)
	if !same.IsOutput("frame_tagged.png") || same.IsOutput("frame.png") {
		t.Error("same directory: IsOutput misclassified")
	}

	testutil.WriteFile(t, dir, "out/keep.txt", []byte("x"))
	outbox, err := storage.NewFS(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatal(err)
	}
	nested := NewProcessor(inbox, outbox, tagger)
	if !nested.IsOutput(filepath.Join("out", "frame_tagged.png")) {
		t.Error("nested outbox: output not recognised")
	}
	if nested.IsOutput("frame_tagged.png") {
		t.Error("nested outbox: inbox frame classified as output")
	}
}

func TestScan_SeparateInboxTagsSuffixedFrames(t *testing.T) {
	inDir, _, outbox, p := newProcessor(t)
	testutil.WriteFile(t, inDir, "holiday_tagged.png", testutil.MinimalPNG(t))

	pending, err := p.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "holiday_tagged.png" {
		t.Fatalf("pending = %v", pending)
	}
	if n, err := p.Scan(); err != nil || n != 1 {
		t.Fatalf("Scan = %d, %v", n, err)
	}
	if !outbox.Exists("holiday_tagged_tagged.png") {
		t.Error("suffixed inbox frame was not tagged")
	}
}

func TestProcess_UsesSidecar(t *testing.T) {
	inDir, _, outbox, p := newProcessor(t)
	testutil.WriteFile(t, inDir, "shot.png", testutil.PNG(t, 3, 2))
	testutil.WriteFile(t, inDir, "shot.json", []byte(`{"source":"movie.mp4","captureTime":12.5,"duration":60,"fps":24,"exportedAt":"2025-01-02T03:04:05.678Z"}`))

	if err := p.Process("shot.png"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	data, err := outbox.Read("shot_tagged.png")
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	c, _, err := capture.Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if c.Source != "movie.mp4" || c.FPS != 24 || c.CaptureTime != 12.5 {
		t.Errorf("capture = %+v", c)
	}
	if c.Width != 3 || c.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 3x2 from header", c.Width, c.Height)
	}
}

func TestProcess_DefaultsWithoutSidecar(t *testing.T) {
	inDir, _, outbox, p := newProcessor(t)
	testutil.WriteFile(t, inDir, "sub/clip.png", testutil.MinimalPNG(t))

	if err := p.Process("sub/clip.png"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	data, err := outbox.Read("sub/clip_tagged.png")
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	c, _, err := capture.Extract(data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if c.Source != "clip.png" || c.FPS != capture.DefaultFPS || c.ExportedAt == "" {
		t.Errorf("capture = %+v", c)
	}
}

func TestProcess_CorruptFrameCopiedUnchanged(t *testing.T) {
	inDir, _, outbox, p := newProcessor(t)
	corrupt := append([]byte(pngtext.Signature), 0, 0, 0, 99)
	testutil.WriteFile(t, inDir, "bad.png", corrupt)

	var gotErr error
	p.cb = func(id, path string, err error) { gotErr = err }

	if err := p.Process("bad.png"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	data, err := outbox.Read("bad_tagged.png")
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if !bytes.Equal(data, corrupt) {
		t.Error("fallback output differs from input")
	}
	if gotErr == nil {
		t.Error("callback should report the embedding error")
	}
}

func TestProcess_RemoveSource(t *testing.T) {
	inDir, inbox, outbox, p := newProcessor(t, WithRemoveSource(true))
	testutil.WriteFile(t, inDir, "gone.png", testutil.MinimalPNG(t))
	testutil.WriteFile(t, inDir, "gone.json", []byte(`{}`))

	if err := p.Process("gone.png"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if inbox.Exists("gone.png") || inbox.Exists("gone.json") {
		t.Error("source not removed")
	}
	if !outbox.Exists("gone_tagged.png") {
		t.Error("output missing")
	}
}

func TestScan_SkipsExistingOutputs(t *testing.T) {
	inDir, _, outbox, p := newProcessor(t)
	testutil.WriteFile(t, inDir, "a.png", testutil.MinimalPNG(t))
	testutil.WriteFile(t, inDir, "b.png", testutil.MinimalPNG(t))
	if err := outbox.Write("b_tagged.png", []byte("already done")); err != nil {
		t.Fatal(err)
	}

	n, err := p.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 1 {
		t.Errorf("processed = %d, want 1", n)
	}
	if got, _ := outbox.Read("b_tagged.png"); string(got) != "already done" {
		t.Error("existing output was overwritten")
	}
}

func TestScan_SameDirectoryIgnoresOutputs(t *testing.T) {
	dir, store := testutil.TestDir(t)
	tagger := capture.NewTagger(capture.WithLogger(quietLogger()))
	p := NewProcessor(store, store, tagger, WithLogger(quietLogger()))
	testutil.WriteFile(t, dir, "x.png", testutil.MinimalPNG(t))

	if n, _ := p.Scan(); n != 1 {
		t.Fatalf("first scan processed %d, want 1", n)
	}
	if n, _ := p.Scan(); n != 0 {
		t.Errorf("second scan processed %d, want 0", n)
	}
}

func TestWatcher_NewFileTagged(t *testing.T) {
	var mu sync.Mutex
	var events []string
	inDir, _, outbox, p := newProcessor(t, WithCallback(func(id, path string, err error) {
		mu.Lock()
		events = append(events, path)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, p)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)
	testutil.WriteFile(t, inDir, "live.png", testutil.MinimalPNG(t))

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return outbox.Exists("live_tagged.png")
	}, "watcher did not tag new frame")

	eventually(t, time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1 && events[0] == "live_tagged.png"
	}, "expected one callback for live_tagged.png")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	inDir, _, outbox, p := newProcessor(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, p)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)
	testutil.WriteFile(t, inDir, "nested/dir/deep.png", testutil.MinimalPNG(t))

	// The file may land before the new directory is watched; a later write
	// inside the watched directory must still be picked up.
	time.Sleep(300 * time.Millisecond)
	testutil.WriteFile(t, inDir, "nested/dir/deeper.png", testutil.MinimalPNG(t))

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return outbox.Exists("nested/dir/deeper_tagged.png")
	}, "watcher did not pick up frame in new directory")
}

func TestPending(t *testing.T) {
	inDir, _, outbox, p := newProcessor(t)
	testutil.WriteFile(t, inDir, "one.png", testutil.MinimalPNG(t))
	testutil.WriteFile(t, inDir, "two.png", testutil.MinimalPNG(t))
	testutil.WriteFile(t, inDir, "two_tagged.png", testutil.MinimalPNG(t))
	_ = outbox.Write("one_tagged.png", []byte("done"))

	pending, err := p.Pending()
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "two.png" {
		t.Errorf("pending = %v, want [two.png]", pending)
	}
}
