package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/framegrab/internal/api"
	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/captureservice"
	"github.com/starford/framegrab/internal/models"
	"github.com/starford/framegrab/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 0
	cfg.Watch.Enabled = true
	cfg.Watch.Inbox = filepath.Join(dir, "in")
	cfg.Watch.Outbox = filepath.Join(dir, "out")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, WithConfig(cfg), WithLogger(discardLogger())) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewRootRouter(t *testing.T) {
	tagger := NewTagger(NewDefaultConfig().Capture, discardLogger())
	svc := captureservice.NewService(tagger, "", nil)
	r := NewRootRouter(api.NewRouter(svc, true, "secret", nil, 1<<20))

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/inspect", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/api/inspect without token = %d, want 401", w.Code)
	}
}

func TestNewTagger_VerifyChecksums(t *testing.T) {
	frame := testutil.MinimalPNG(t)
	frame[len(frame)-1] ^= 0xff // corrupt the IEND CRC

	cfg := NewDefaultConfig().Capture
	c := testCapture()

	if res := NewTagger(cfg, discardLogger()).Tag(frame, c); !res.Embedded {
		t.Fatalf("stored CRCs should be trusted by default: %v", res.Err)
	}

	cfg.VerifyChecksums = true
	if res := NewTagger(cfg, discardLogger()).Tag(frame, c); res.Embedded {
		t.Fatal("corrupt CRC should be rejected when verification is on")
	}
}

func testCapture() models.Capture {
	return capture.New("demo.mp4", 1, 2, 30, 1, 1, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}
