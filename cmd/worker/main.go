// Package main is the entrypoint for the ScholarSource discovery worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/scholarsource/scholarsource/internal/broker"
	"github.com/scholarsource/scholarsource/internal/cache"
	"github.com/scholarsource/scholarsource/internal/config"
	"github.com/scholarsource/scholarsource/internal/fingerprint"
	"github.com/scholarsource/scholarsource/internal/pipeline"
	"github.com/scholarsource/scholarsource/internal/store"
	"github.com/scholarsource/scholarsource/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "pipeline_url", cfg.Pipeline.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// Migrations are normally applied by the server; running them here too
	// lets the worker start standalone against a fresh database.
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	rb, err := broker.NewRedisBroker(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis broker: %w", err)
	}
	defer rb.Close()

	if err := rb.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	fp := fingerprint.New(cfg.Fingerprint.ConfigDir)
	pgStore := store.NewPostgresStore(pool)
	pgCache := cache.NewPostgresCache(pool, fp, cfg.Cache)
	runner := pipeline.NewHTTPRunner(cfg.Pipeline.BaseURL, cfg.Pipeline.Timeout)

	w := worker.New(rb, pgStore, pgCache, runner, slog.Default())

	slog.Info("worker started", "queue", "discovery")
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker run: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}
