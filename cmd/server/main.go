package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/artioladoli/security-awareness-training/internal/api"
	"github.com/artioladoli/security-awareness-training/internal/catalog"
	"github.com/artioladoli/security-awareness-training/internal/platform/cache"
	"github.com/artioladoli/security-awareness-training/internal/platform/config"
	"github.com/artioladoli/security-awareness-training/internal/platform/database"
	"github.com/artioladoli/security-awareness-training/internal/training"
)

func main() {
	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	readyChecks := []api.ReadyCheck{
		{Name: "database", Check: db.HealthCheck},
	}

	var questionCache *cache.Cache
	if cfg.Cache.URL != "" {
		questionCache, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			// The cache is an optimization; the app serves from Postgres
			// without it.
			slog.Warn("cache unavailable, continuing without it", "error", err)
		} else {
			defer questionCache.Close()
			readyChecks = append(readyChecks, api.ReadyCheck{
				Name: "cache", Check: questionCache.HealthCheck,
			})
		}
	}

	catalogStore := catalog.NewPostgresStore(db)

	seed, err := catalog.LoadSeed(cfg.SeedPath)
	if err != nil {
		slog.Error("failed to load seed file", "error", err, "path", cfg.SeedPath)
		os.Exit(1)
	}
	if err := catalog.Seed(ctx, catalogStore, seed); err != nil {
		slog.Error("failed to seed catalog", "error", err)
		os.Exit(1)
	}

	engine := training.NewEngine(training.EngineConfig{
		Catalog: catalogStore,
		Store:   training.NewPostgresStore(db),
	})

	handler := api.NewHandler(api.HandlerConfig{
		Engine:      engine,
		Catalog:     catalogStore,
		Cache:       questionCache,
		QuestionTTL: cfg.Cache.QuestionTTL,
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL:    time.Duration(cfg.Auth.AccessTokenTTL) * time.Minute,
		ReadyChecks: readyChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
