package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/fetcher"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

type stubFetcher struct {
	name  string
	table string
	rows  []warehouse.Row
	err   error
	calls int
}

func (f *stubFetcher) Name() string  { return f.name }
func (f *stubFetcher) Table() string { return f.table }

func (f *stubFetcher) Fetch(context.Context) ([]warehouse.Row, []string, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.rows, []string{"record_id", "load_timestamp"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newScheduler(fetchers []fetcher.Fetcher, cadences map[string]Cadence, writer warehouse.Writer) *Scheduler {
	return New(fetchers, cadences, writer, 300*time.Second,
		discardLogger(), observability.NewMetricsForTesting())
}

func feedRow(id string) warehouse.Row {
	return warehouse.Row{"record_id": id, "load_timestamp": time.Now().UTC()}
}

func TestRunAllLoadsEveryFeed(t *testing.T) {
	mem := warehouse.NewMemory()
	quakes := &stubFetcher{name: "earthquake", table: "earthquake_events", rows: []warehouse.Row{feedRow("a"), feedRow("b")}}
	storms := &stubFetcher{name: "storm", table: "storm_reports", rows: []warehouse.Row{feedRow("c")}}
	s := newScheduler([]fetcher.Fetcher{quakes, storms}, nil, mem)

	s.RunAll(context.Background())

	assert.Len(t, mem.Rows("earthquake_events"), 2)
	assert.Len(t, mem.Rows("storm_reports"), 1)
	assert.Equal(t, 1, quakes.calls)
	assert.Equal(t, 1, storms.calls)
}

func TestRunAllReplacesPreviousSnapshot(t *testing.T) {
	mem := warehouse.NewMemory()
	f := &stubFetcher{name: "earthquake", table: "earthquake_events", rows: []warehouse.Row{feedRow("a"), feedRow("b")}}
	s := newScheduler([]fetcher.Fetcher{f}, nil, mem)

	s.RunAll(context.Background())
	f.rows = []warehouse.Row{feedRow("c")}
	s.RunAll(context.Background())

	rows := mem.Rows("earthquake_events")
	require.Len(t, rows, 1)
	assert.Equal(t, "c", rows[0]["record_id"])
}

func TestFailedFetchKeepsPreviousSnapshot(t *testing.T) {
	mem := warehouse.NewMemory()
	good := &stubFetcher{name: "storm", table: "storm_reports", rows: []warehouse.Row{feedRow("s1")}}
	s := newScheduler([]fetcher.Fetcher{good}, nil, mem)
	s.RunAll(context.Background())

	good.err = errors.New("upstream 503")
	s.RunAll(context.Background())

	assert.Len(t, mem.Rows("storm_reports"), 1, "failed fetch must not truncate the table")
}

func TestFailedFetcherDoesNotStopOthers(t *testing.T) {
	mem := warehouse.NewMemory()
	broken := &stubFetcher{name: "wildfire", table: "wildfire_incidents", err: errors.New("parse error")}
	good := &stubFetcher{name: "storm", table: "storm_reports", rows: []warehouse.Row{feedRow("s1")}}
	s := newScheduler([]fetcher.Fetcher{broken, good}, nil, mem)

	s.RunAll(context.Background())

	assert.Empty(t, mem.Rows("wildfire_incidents"))
	assert.Len(t, mem.Rows("storm_reports"), 1)
}

func TestRunSchedulesOnCadence(t *testing.T) {
	mem := warehouse.NewMemory()
	f := &stubFetcher{name: "nrevss", table: "nrevss_respiratory_data", rows: []warehouse.Row{feedRow("n1")}}
	s := newScheduler([]fetcher.Fetcher{f}, map[string]Cadence{"nrevss": CadenceHourly}, mem)

	fake := clockwork.NewFakeClockAt(time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC))
	s.SetClock(fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Startup run happens before the loop sleeps.
	fake.BlockUntil(1)
	assert.Equal(t, 1, f.calls)

	fake.Advance(time.Hour)
	require.Eventually(t, func() bool { return f.calls == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNextRun(t *testing.T) {
	// Wednesday.
	now := time.Date(2025, time.January, 8, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		cadence Cadence
		now     time.Time
		want    time.Time
	}{
		{
			name:    "hourly rounds to next hour",
			cadence: CadenceHourly,
			now:     now,
			want:    time.Date(2025, time.January, 8, 11, 0, 0, 0, time.UTC),
		},
		{
			name:    "daily after 03:00 is tomorrow",
			cadence: CadenceDaily,
			now:     now,
			want:    time.Date(2025, time.January, 9, 3, 0, 0, 0, time.UTC),
		},
		{
			name:    "daily before 03:00 is today",
			cadence: CadenceDaily,
			now:     time.Date(2025, time.January, 8, 1, 0, 0, 0, time.UTC),
			want:    time.Date(2025, time.January, 8, 3, 0, 0, 0, time.UTC),
		},
		{
			name:    "weekly lands on next Sunday 02:00",
			cadence: CadenceWeekly,
			now:     now,
			want:    time.Date(2025, time.January, 12, 2, 0, 0, 0, time.UTC),
		},
		{
			name:    "weekly on Sunday after 02:00 is next week",
			cadence: CadenceWeekly,
			now:     time.Date(2025, time.January, 12, 9, 0, 0, 0, time.UTC),
			want:    time.Date(2025, time.January, 19, 2, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextRun(tt.cadence, tt.now))
		})
	}
}

func TestLoadCadenceOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cadences:\n  nrevss: hourly\n  wildfire: daily\n"), 0o644))

	overrides, err := LoadCadenceOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]Cadence{"nrevss": CadenceHourly, "wildfire": CadenceDaily}, overrides)
}

func TestLoadCadenceOverridesEmptyPath(t *testing.T) {
	overrides, err := LoadCadenceOverrides("")
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestLoadCadenceOverridesRejectsUnknownCadence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cadences:\n  nrevss: fortnightly\n"), 0o644))

	_, err := LoadCadenceOverrides(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fortnightly")
}

func TestUnknownOverrideNameIgnored(t *testing.T) {
	mem := warehouse.NewMemory()
	f := &stubFetcher{name: "storm", table: "storm_reports"}
	s := newScheduler([]fetcher.Fetcher{f}, map[string]Cadence{"no_such_feed": CadenceHourly}, mem)

	assert.Equal(t, CadenceWeekly, s.cadences["storm"])
	_, ok := s.cadences["no_such_feed"]
	assert.False(t, ok)
}
