// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/framegrab/internal/api"
	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/captureservice"
	"github.com/starford/framegrab/internal/sse"
	"github.com/starford/framegrab/internal/storage"
	"github.com/starford/framegrab/internal/watch"
)

// NewTagger builds the capture tagger described by cfg.
func NewTagger(cfg CaptureConfig, logger *slog.Logger) *capture.Tagger {
	opts := []capture.TaggerOption{
		capture.WithLogger(logger),
		capture.WithPlaceholder(cfg.SourcePlaceholder),
	}
	if cfg.VerifyChecksums {
		opts = append(opts, capture.WithVerifyChecksums())
	}
	return capture.NewTagger(opts...)
}

// NewWatchProcessor opens the inbox and outbox directories, creating them if
// needed, and returns a processor for them.
func NewWatchProcessor(cfg WatchConfig, tagger *capture.Tagger, logger *slog.Logger, cb watch.EventCallback) (*watch.Processor, error) {
	for _, dir := range []string{cfg.Inbox, cfg.Outbox} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create watch dir: %w", err)
		}
	}
	inbox, err := storage.NewFS(cfg.Inbox)
	if err != nil {
		return nil, fmt.Errorf("init inbox: %w", err)
	}
	outbox, err := storage.NewFS(cfg.Outbox)
	if err != nil {
		return nil, fmt.Errorf("init outbox: %w", err)
	}
	return watch.NewProcessor(inbox, outbox, tagger,
		watch.WithSuffix(cfg.Suffix),
		watch.WithRemoveSource(cfg.RemoveSource),
		watch.WithLogger(logger),
		watch.WithCallback(cb),
	), nil
}

// NewRootRouter mounts apiRouter under /api next to the unauthenticated
// health endpoints.
func NewRootRouter(apiRouter http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)
	return r
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Bool("watch_enabled", cfg.Watch.Enabled),
		slog.Bool("verify_checksums", cfg.Capture.VerifyChecksums),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(15 * time.Second)
	defer broker.Close()

	tagger := NewTagger(cfg.Capture, logger)
	svc := captureservice.NewService(tagger, cfg.Capture.FramePrefix, broker.PublishCapture)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Capture.MaxUploadBytes)

	r := NewRootRouter(apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gCtx := errgroup.WithContext(runCtx)

	// Start inbox watcher with SSE callback.
	if cfg.Watch.Enabled {
		proc, err := NewWatchProcessor(cfg.Watch, tagger, logger, broker.PublishCapture)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watch.Watch(gCtx, proc)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		cancelRun()

		// SSE streams stay open until the broker closes them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
