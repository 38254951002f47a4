// Command worker drains the report subscription and writes each report into
// the warehouse. It serves health and metrics endpoints for the platform's
// probes.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/civicsignal/report-pipeline/internal/adapter/http"
	kafkaadapter "github.com/civicsignal/report-pipeline/internal/adapter/kafka"
	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/config"
	"github.com/civicsignal/report-pipeline/internal/observability"
	"github.com/civicsignal/report-pipeline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireDatabase(); err != nil {
		slog.Error("worker needs a warehouse", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := warehouse.NewPostgres(ctx, cfg.DatabaseURL, cfg.WarehouseSchema, logger)
	if err != nil {
		logger.Error("failed to connect to warehouse", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx, cfg.ReportsTable); err != nil {
		logger.Error("failed to provision warehouse schema", "error", err)
		os.Exit(1)
	}

	w := worker.New(pg, cfg.ReportsTable, logger, metrics)
	subscriber := kafkaadapter.NewSubscriber(cfg, logger, metrics)

	srv := httpadapter.NewServer(":"+cfg.Port, w, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	w.SetReady(true)
	metrics.WorkerRunning.Set(1)

	if err := subscriber.Receive(ctx, w.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("subscriber stopped with error", "error", err)
	}

	w.SetReady(false)
	metrics.WorkerRunning.Set(0)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", "error", err)
	}
	if err := subscriber.Close(); err != nil {
		logger.Error("subscriber close error", "error", err)
	}

	logger.Info("shutdown complete")
}
