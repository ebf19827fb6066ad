// Package cli holds the startup plumbing shared by cmd/sem,
// cmd/sem-worker and cmd/sem-init.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sem/internal/config"
	"sem/internal/log"
	"sem/internal/storage"
)

// SetupLogger installs the default logger from SEM_LOG_LEVEL and
// SEM_LOG_FORMAT (text unless set to "json").
func SetupLogger() {
	log.Setup(os.Getenv("SEM_LOG_LEVEL"), os.Getenv("SEM_LOG_FORMAT") == "json")
}

// LoadEnvFile loads the .env file for local development. Errors are
// ignored silently as the file is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it, exiting
// the process on failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenOrInitStore opens the database at path, creating it when it does
// not exist yet. Exits the process on any other failure.
func OpenOrInitStore(path string) *storage.Store {
	store, err := storage.Open(path)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("Database not found, creating it", "path", path)
		store, err = storage.Initialize(path)
	}
	if err != nil {
		slog.Error("Failed to open expense store", "error", err, "path", path)
		os.Exit(1)
	}
	return store
}

// LoadOrCreateCategories loads the category registry file, seeding it
// with the default set on first run. Exits the process on failure.
func LoadOrCreateCategories(path string) *config.Categories {
	cats, err := config.LoadOrCreateCategories(path)
	if err != nil {
		slog.Error("Failed to load category registry", "error", err, "path", path)
		os.Exit(1)
	}
	return cats
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM. The
// cleanup callback runs before cancellation, bounded by timeout.
func GracefulShutdown(timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has
// finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
