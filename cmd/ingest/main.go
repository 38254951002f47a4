// Command ingest runs the external-feed ingestion scheduler: each public
// health and hazard feed is fetched on its cadence and truncate-loaded into
// its warehouse table. With -once it runs every fetcher a single time and
// exits.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/config"
	"github.com/civicsignal/report-pipeline/internal/fetcher"
	"github.com/civicsignal/report-pipeline/internal/observability"
	"github.com/civicsignal/report-pipeline/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run every fetcher once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireDatabase(); err != nil {
		slog.Error("ingest needs a warehouse", "error", err)
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

	client := fetcher.NewClient(cfg.FetchTimeout, cfg.FetchRateLimit)
	fetchers := []fetcher.Fetcher{
		fetcher.NewWildfire(client),
		fetcher.NewEarthquake(client),
		fetcher.NewStorm(client),
		fetcher.NewDrug(client),
		fetcher.NewCDCCovid(client, cfg.SocrataAppToken),
		fetcher.NewRespiratory(client, cfg.SocrataAppToken),
		fetcher.NewNREVSS(client, cfg.SocrataAppToken),
	}

	cadences, err := scheduler.LoadCadenceOverrides(cfg.IngestConfig)
	if err != nil {
		logger.Error("invalid cadence config", "error", err)
		os.Exit(1)
	}

	s := scheduler.New(fetchers, cadences, pg, cfg.FetchTimeout, logger, metrics)

	if *once {
		s.RunAll(ctx)
		logger.Info("one-shot ingestion complete")
		return
	}

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
