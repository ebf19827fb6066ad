package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"sem/internal/amqp"
	"sem/internal/cli"
	gsheet "sem/internal/sheets/google"
	"sem/internal/storage"
	"sem/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cli.SetupLogger()

	slog.Info("Starting sem-worker")

	cfg := cli.LoadAndValidateConfig()

	if cfg.AMQPURL == "" {
		slog.Error("sem-worker needs AMQP_URL: it does nothing without change events")
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		slog.Error("sem-worker needs GOOGLE_SPREADSHEET_ID: no backup target configured")
		os.Exit(1)
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open expense store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	sheetsClient, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		slog.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	slog.Info("Google Sheets backup target ready", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	events, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		slog.Error("Failed to connect to AMQP broker", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	backup := worker.NewBackupWorker(store, sheetsClient, sheetsClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return events.ConsumeEventsWithRetry(gctx, backup.HandleRecordAdded, backup.HandleRecordsDeleted)
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			slog.Info("Shutdown signal received", "signal", sig.String())
			cancel()
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Worker shutdown complete")
}
