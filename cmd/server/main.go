package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/landrecords/internal/config"
	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/JonMunkholm/landrecords/internal/extract"
	"github.com/JonMunkholm/landrecords/internal/logging"
	"github.com/JonMunkholm/landrecords/internal/store/memory"
	"github.com/JonMunkholm/landrecords/internal/store/postgres"
	"github.com/JonMunkholm/landrecords/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"sync_debounce", cfg.Sync.Debounce,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"extractor_enabled", cfg.Extractor.Enabled(),
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	svcCfg := core.ServiceConfig{
		Debounce:    cfg.Sync.Debounce,
		PushTimeout: cfg.Sync.PushTimeout,
		SessionTTL:  cfg.Sync.SessionTTL,
		Seed:        cfg.Store.Seed,
		MaxFileSize: cfg.Import.MaxFileSize,
		MaxImports:  cfg.Import.MaxConcurrent,
		ImportWait:  cfg.Import.MaxWaitTime,
	}
	if cfg.Extractor.Enabled() {
		client, err := extract.New(extract.Config{
			APIKey:  cfg.Extractor.APIKey,
			Model:   cfg.Extractor.Model,
			BaseURL: cfg.Extractor.BaseURL,
			Timeout: cfg.Extractor.Timeout,
		})
		if err != nil {
			slog.Error("failed to create extractor", "error", err)
			os.Exit(1)
		}
		svcCfg.Extractor = client
		slog.Info("extractor configured", "model", cfg.Extractor.Model)
	}

	service := core.NewService(store, svcCfg)
	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartJanitor(jobCtx, cfg.Sync.JanitorInterval)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Save whatever is still unsaved once no request can add more
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Error("unsaved edits could not be flushed", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

// openStore opens the configured dataset store and returns its closer.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case config.DriverMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil

	default:
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}

		store := postgres.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}
}
