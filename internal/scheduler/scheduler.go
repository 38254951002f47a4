// Package scheduler drives the feed fetchers on their configured cadences
// and bulk-loads the results into the warehouse.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/fetcher"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

// Cadence names how often a fetcher runs.
type Cadence string

const (
	// CadenceWeekly runs Sundays at 02:00.
	CadenceWeekly Cadence = "weekly"
	// CadenceDaily runs every day at 03:00.
	CadenceDaily Cadence = "daily"
	// CadenceHourly runs at the top of every hour.
	CadenceHourly Cadence = "hourly"
)

// Scheduler owns the fetch loop: each fetcher runs once at startup, then on
// its cadence. Fetchers within one tick run serially; a failing fetcher is
// logged and the previous warehouse snapshot is left in place.
type Scheduler struct {
	fetchers    []fetcher.Fetcher
	cadences    map[string]Cadence
	writer      warehouse.Writer
	tickTimeout time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a scheduler. cadences overrides the weekly default per fetcher
// name; unknown names are ignored. tickTimeout bounds one fetcher run.
func New(fetchers []fetcher.Fetcher, cadences map[string]Cadence, writer warehouse.Writer,
	tickTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	resolved := make(map[string]Cadence, len(fetchers))
	for _, f := range fetchers {
		resolved[f.Name()] = CadenceWeekly
	}
	for name, c := range cadences {
		if _, ok := resolved[name]; ok {
			resolved[name] = c
		}
	}
	return &Scheduler{
		fetchers:    fetchers,
		cadences:    resolved,
		writer:      writer,
		tickTimeout: tickTimeout,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		metrics:     metrics,
	}
}

// SetClock swaps the scheduler's time source, for tests.
func (s *Scheduler) SetClock(c clockwork.Clock) {
	s.clock = c
}

// cadenceFile is the shape of the optional YAML override file.
type cadenceFile struct {
	Cadences map[string]string `yaml:"cadences"`
}

// LoadCadenceOverrides reads per-fetcher cadence overrides from a YAML file.
// An empty path returns an empty map.
func LoadCadenceOverrides(path string) (map[string]Cadence, error) {
	if path == "" {
		return map[string]Cadence{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cadence config %s: %w", path, err)
	}
	var file cadenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cadence config %s: %w", path, err)
	}

	overrides := make(map[string]Cadence, len(file.Cadences))
	for name, raw := range file.Cadences {
		c := Cadence(raw)
		switch c {
		case CadenceWeekly, CadenceDaily, CadenceHourly:
			overrides[name] = c
		default:
			return nil, fmt.Errorf("cadence config %s: unknown cadence %q for %s", path, raw, name)
		}
	}
	return overrides, nil
}

// Run executes the fetch loop until the context is cancelled. Every fetcher
// runs once immediately, then on its schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("ingestion scheduler starting", "fetchers", len(s.fetchers))

	next := make(map[string]time.Time, len(s.fetchers))
	for _, f := range s.fetchers {
		s.runOne(ctx, f)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		next[f.Name()] = nextRun(s.cadences[f.Name()], s.clock.Now())
	}

	for {
		wake := soonest(next)
		delay := wake.Sub(s.clock.Now())
		if delay < 0 {
			delay = 0
		}

		select {
		case <-ctx.Done():
			s.logger.Info("ingestion scheduler stopping")
			return ctx.Err()
		case <-s.clock.After(delay):
		}

		now := s.clock.Now()
		for _, f := range s.fetchers {
			if next[f.Name()].After(now) {
				continue
			}
			s.runOne(ctx, f)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			next[f.Name()] = nextRun(s.cadences[f.Name()], s.clock.Now())
		}
	}
}

// RunAll runs every fetcher once, serially. Used by the one-shot ingest mode.
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, f := range s.fetchers {
		s.runOne(ctx, f)
		if ctx.Err() != nil {
			return
		}
	}
}

// runOne fetches one source and truncate-loads its table, bounded by the
// tick timeout. Failures are logged and swallowed so one broken feed cannot
// stall the others.
func (s *Scheduler) runOne(ctx context.Context, f fetcher.Fetcher) {
	logger := s.logger.With("source", f.Name(), "table", f.Table())
	tickCtx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()

	start := time.Now()
	rows, columns, err := f.Fetch(tickCtx)
	if err != nil {
		s.metrics.FetchErrors.WithLabelValues(f.Name()).Inc()
		logger.Error("fetch failed, keeping previous snapshot", "error", err)
		return
	}

	if err := s.writer.LoadTable(tickCtx, f.Table(), columns, rows, warehouse.LoadTruncate); err != nil {
		s.metrics.FetchErrors.WithLabelValues(f.Name()).Inc()
		logger.Error("load failed, keeping previous snapshot", "error", err)
		return
	}

	elapsed := time.Since(start)
	s.metrics.FetchRows.WithLabelValues(f.Name()).Add(float64(len(rows)))
	s.metrics.FetchDuration.WithLabelValues(f.Name()).Observe(elapsed.Seconds())
	logger.Info("feed loaded", "rows", len(rows), "duration", elapsed)
}

// nextRun computes the first run time strictly after now for a cadence.
func nextRun(c Cadence, now time.Time) time.Time {
	switch c {
	case CadenceHourly:
		return now.Truncate(time.Hour).Add(time.Hour)
	case CadenceDaily:
		run := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
		if !run.After(now) {
			run = run.AddDate(0, 0, 1)
		}
		return run
	default: // weekly, Sunday 02:00
		run := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, now.Location())
		for run.Weekday() != time.Sunday || !run.After(now) {
			run = run.AddDate(0, 0, 1)
		}
		return run
	}
}

func soonest(next map[string]time.Time) time.Time {
	var min time.Time
	for _, t := range next {
		if min.IsZero() || t.Before(min) {
			min = t
		}
	}
	return min
}
