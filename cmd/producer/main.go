// Command producer serves the report submission API. Accepted reports are
// published to the reports topic, or written straight to the warehouse when
// USE_PUBSUB is off.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	kafkaadapter "github.com/civicsignal/report-pipeline/internal/adapter/kafka"
	"github.com/civicsignal/report-pipeline/internal/adapter/mapbox"
	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/config"
	"github.com/civicsignal/report-pipeline/internal/domain"
	"github.com/civicsignal/report-pipeline/internal/observability"
	"github.com/civicsignal/report-pipeline/internal/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	geocoder := buildGeocoder(cfg, logger, metrics)

	var (
		svc       *producer.Service
		publisher *kafkaadapter.Publisher
		pg        *warehouse.Postgres
	)
	if cfg.UsePubSub {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		svc = producer.NewService(producer.ModeAsync, publisher, nil, cfg.ReportsTable,
			geocoder, logger, metrics)
		logger.Info("producer in async mode", "topic", cfg.ReportsTopic)
	} else {
		if err := cfg.RequireDatabase(); err != nil {
			logger.Error("sync mode needs a warehouse", "error", err)
			os.Exit(1)
		}
		pg, err = warehouse.NewPostgres(ctx, cfg.DatabaseURL, cfg.WarehouseSchema, logger)
		if err != nil {
			logger.Error("failed to connect to warehouse", "error", err)
			os.Exit(1)
		}
		if err := pg.EnsureSchema(ctx, cfg.ReportsTable); err != nil {
			logger.Error("failed to provision warehouse schema", "error", err)
			os.Exit(1)
		}
		svc = producer.NewService(producer.ModeSync, nil, pg, cfg.ReportsTable,
			geocoder, logger, metrics)
		logger.Info("producer in sync mode", "table", cfg.ReportsTable)
	}

	handler := producer.NewHandler(svc, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("submission API listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("publisher close error", "error", err)
		}
	}
	if pg != nil {
		pg.Close()
	}

	logger.Info("shutdown complete")
}

// buildGeocoder assembles the geocoding stack from the feature flags: Mapbox
// client, then a shared Redis cache when configured, else the in-process LRU.
func buildGeocoder(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) domain.Geocoder {
	if !cfg.MapboxEnabled {
		logger.Info("mapbox geocoding disabled")
		return nil
	}

	client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info("mapbox geocoding enabled with redis cache", "redis", cfg.RedisAddr)
		return mapbox.NewRedisGeocoder(client, rdb, logger, metrics)
	}
	logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	return mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
}
