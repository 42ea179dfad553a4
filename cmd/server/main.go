// Package main is the entrypoint for the ScholarSource API server.
package main

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

	"github.com/joho/godotenv"
	"github.com/scholarsource/scholarsource/internal/api"
	"github.com/scholarsource/scholarsource/internal/api/handler"
	"github.com/scholarsource/scholarsource/internal/broker"
	"github.com/scholarsource/scholarsource/internal/cache"
	"github.com/scholarsource/scholarsource/internal/config"
	"github.com/scholarsource/scholarsource/internal/dispatch"
	"github.com/scholarsource/scholarsource/internal/fingerprint"
	"github.com/scholarsource/scholarsource/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "pipeline_url", cfg.Pipeline.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to the broker
	rb, err := broker.NewRedisBroker(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis broker: %w", err)
	}
	defer rb.Close()

	if err := rb.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Wire domain components
	fp := fingerprint.New(cfg.Fingerprint.ConfigDir)
	pgStore := store.NewPostgresStore(pool)
	pgCache := cache.NewPostgresCache(pool, fp, cfg.Cache)
	dispatcher := dispatch.New(rb, pgStore)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler:     handler.NewHealthHandler(pgStore, rb),
		DiscoverHandler:   handler.NewDiscoverHandler(pgStore, dispatcher),
		StatusHandler:     handler.NewStatusHandler(pgStore),
		CancelHandler:     handler.NewCancelHandler(pgStore, dispatcher),
		CacheStatsHandler: handler.NewCacheStatsHandler(pgCache),
		CacheSweepHandler: handler.NewCacheSweepHandler(pgCache),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
