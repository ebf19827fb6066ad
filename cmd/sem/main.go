package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sem/internal/amqp"
	"sem/internal/cli"
	apphttp "sem/internal/http"
	"sem/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig()

	store := cli.OpenOrInitStore(cfg.DBPath)
	categories := cli.LoadOrCreateCategories(cfg.CategoriesFile)

	// Change events are optional. Without a broker the API still works,
	// only the spreadsheet backup lags behind until one is configured.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Error("Failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		slog.Info("Change event publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		slog.Info("Change event publishing disabled, no AMQP_URL provided")
	}

	svc := services.NewExpenseService(store, categories, events)
	srv := apphttp.NewServer(":"+cfg.Port, svc)

	ctx, done := cli.GracefulShutdown(30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := svc.Close(); err != nil {
			slog.Error("Service close error", "error", err)
		}
	})

	slog.Info("Starting sem server", "port", cfg.Port, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	slog.Info("Server stopped gracefully")
}
