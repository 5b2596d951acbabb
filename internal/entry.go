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

	"github.com/plumehq/plume/internal/api"
	"github.com/plumehq/plume/internal/confirm"
	"github.com/plumehq/plume/internal/mcpserver"
	"github.com/plumehq/plume/internal/mutate"
	"github.com/plumehq/plume/internal/resolver"
	"github.com/plumehq/plume/internal/ripgrep"
	"github.com/plumehq/plume/internal/search"
	"github.com/plumehq/plume/internal/spacestore"
	"github.com/plumehq/plume/internal/sse"
	"github.com/plumehq/plume/internal/storage"
	"github.com/plumehq/plume/internal/watch"
)

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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("mcp", cfg.App.MCP),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize the local vault.
	vault, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	// Initialize the space store.
	spaces, err := spacestore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init space store: %w", err)
	}
	defer spaces.Close()

	// Core services.
	listing := search.NewListing(vault, spaces, cfg.Cache.NoteTTL(), cfg.Cache.FolderTTL(), nil)
	rg := ripgrep.New(cfg.Search.RipgrepBinary, cfg.Search.RipgrepTimeout())
	if !rg.Available() {
		logger.Warn("ripgrep not found, content search falls back to in-process scan",
			slog.String("binary", cfg.Search.RipgrepBinary))
	}
	agg := search.NewAggregator(vault, cfg.Vault.Path, spaces, rg, listing, logger)
	res := resolver.New(listing, resolver.Options{
		MinScore:       cfg.Search.MinScore,
		AmbiguityDelta: cfg.Search.AmbiguityDelta,
	})
	gate := confirm.NewGate(cfg.Confirm.TTL(), nil)

	// SSE broker; the orchestrator and the watcher publish into it.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	orch := mutate.New(vault, spaces, listing, gate, logger, broker.PublishChange)

	// Build API router.
	h := api.NewHandler(res, agg, orch, listing)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Vault.Path)

	// Build chi router.
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

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start vault watcher; external edits invalidate the cache and feed SSE.
	g.Go(func() error {
		if err := watch.Watch(gCtx, listing, cfg.Vault.Path, logger, broker.PublishChange); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Optionally serve MCP tools on stdio.
	if cfg.App.MCP {
		mcp := mcpserver.New(res, agg, orch, listing)
		g.Go(func() error {
			logger.Info("Starting MCP stdio server")
			if err := mcp.ServeStdio(); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

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
