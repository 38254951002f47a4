package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
// The three binaries (producer, worker, ingest) share one config type; each
// validates only the sections it uses at startup.
type Config struct {
	KafkaBrokers    []string
	ReportsTopic    string
	DeadLetterTopic string
	GroupID         string

	// UsePubSub selects the producer delivery mode: async publish when true,
	// direct warehouse insert when false. Read once at startup and threaded
	// through the producer constructor.
	UsePubSub       bool
	PublishTimeout  time.Duration
	RedeliveryLimit int

	WorkerConcurrency int
	MaxInFlightBytes  int64

	DatabaseURL     string
	WarehouseSchema string
	ReportsTable    string

	HTTPAddr        string
	Port            string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Optional shared geocode cache.
	RedisAddr string

	// Feed ingestion configuration.
	SocrataAppToken string
	IngestConfig    string // path to optional YAML cadence overrides
	FetchTimeout    time.Duration
	FetchRateLimit  float64
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	publishTimeout, err := parseDuration("PUBLISH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "300s")
	if err != nil {
		return nil, err
	}
	redeliveryLimit, err := parseInt("REDELIVERY_LIMIT", 5, 1, 100)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("WORKER_CONCURRENCY", 10, 1, 1000)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("MAPBOX_CACHE_SIZE", 1000, 1, 1_000_000)
	if err != nil {
		return nil, err
	}
	maxBytes, err := parseInt("MAX_INFLIGHT_BYTES", 10<<20, 1<<10, 1<<30)
	if err != nil {
		return nil, err
	}
	rateLimit, err := parseFloat("FETCH_RATE_LIMIT", 2)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:    splitBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		ReportsTopic:    envOrDefault("REPORTS_TOPIC", "community-reports-submitted"),
		DeadLetterTopic: envOrDefault("DEAD_LETTER_TOPIC", "community-reports-dead-letter"),
		GroupID:         envOrDefault("GROUP_ID", "warehouse-writer-sub"),

		UsePubSub:       truthy(os.Getenv("USE_PUBSUB")),
		PublishTimeout:  publishTimeout,
		RedeliveryLimit: redeliveryLimit,

		WorkerConcurrency: concurrency,
		MaxInFlightBytes:  int64(maxBytes),

		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WarehouseSchema: envOrDefault("WAREHOUSE_SCHEMA", "crowdsource_data"),
		ReportsTable:    envOrDefault("REPORTS_TABLE", "crowdsource_reports"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		Port:            envOrDefault("PORT", "8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: cacheSize,

		RedisAddr: os.Getenv("REDIS_ADDR"),

		SocrataAppToken: os.Getenv("SOCRATA_APP_TOKEN"),
		IngestConfig:    os.Getenv("INGEST_CONFIG"),
		FetchTimeout:    fetchTimeout,
		FetchRateLimit:  rateLimit,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.ReportsTopic == "" {
		return nil, errors.New("REPORTS_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// RequireDatabase returns an error unless DATABASE_URL is set. Called by the
// worker and ingest binaries, and by the producer in sync mode.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// truthy implements the USE_PUBSUB contract: any of 1/true/yes/on
// (case-insensitive) enables async mode.
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, min, max)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive number", key)
	}
	return f, nil
}
