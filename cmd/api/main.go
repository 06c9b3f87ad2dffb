// cmd/api/main.go
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

	"libracatalog/internal/config"
	"libracatalog/internal/observability"
	"libracatalog/internal/server"
	"libracatalog/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stdout, cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	db, repos, err := server.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("store ready", "driver", cfg.Database.Driver)

	if cfg.MigrateOnStart && cfg.Database.Driver != storage.DriverMemory {
		if err := migrateUp(ctx, db); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.NewRouter(cfg, logger, db, repos),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func migrateUp(ctx context.Context, db storage.DB) error {
	m, err := storage.NewMigrator(db)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}
