package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/personimport/internal/backend"
	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/config"
	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/logging"
	"github.com/JonMunkholm/personimport/internal/store"
	"github.com/JonMunkholm/personimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	cat, err := catalog.LoadFile(cfg.Catalog.File)
	if err != nil {
		slog.Error("failed to load field catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("field catalog loaded", "fields", cat.Len(), "file", cfg.Catalog.File)

	client, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.URL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	})
	if err != nil {
		slog.Error("failed to create backend client", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var opts []core.Option

	if cfg.Database.Enabled() {
		db, err := store.Open(ctx, store.Options{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				slog.Error("failed to migrate database", "error", err)
				os.Exit(1)
			}
		}
		opts = append(opts, core.WithTemplateStore(db), core.WithRunStore(db))
	} else {
		slog.Warn("no DATABASE_URL set; mapping templates and import history are disabled")
	}

	service := core.NewService(cat, client, core.Config{
		Session: core.SessionOptions{
			MaxRows:        cfg.Import.MaxRows,
			MaxPreviewRows: cfg.Import.MaxPreviewRows,
		},
		MaxConcurrentCalls: cfg.Import.MaxConcurrentCalls,
		MaxWait:            cfg.Import.MaxWaitTime,
		SessionTTL:         cfg.Import.SessionTTL,
	}, opts...)

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go service.StartMaintenance(jobCtx, core.MaintenanceConfig{
		Interval:         cfg.Retention.Interval,
		RunRetentionDays: cfg.Retention.RunDays,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := service.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for backend calls to complete", "active", active)
			if err := service.Shutdown(shutdownCtx); err != nil {
				slog.Warn("backend calls did not complete in time", "error", err)
			} else {
				slog.Info("all backend calls completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(jobCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
