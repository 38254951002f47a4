package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// report pipeline.
type Metrics struct {
	// Producer metrics.
	ReportsAccepted *prometheus.CounterVec // labels: mode={async,sync}
	ReportsRejected prometheus.Counter
	PublishErrors   prometheus.Counter
	PublishDuration prometheus.Histogram

	// Worker metrics.
	MessagesProcessed prometheus.Counter
	ParseErrors       prometheus.Counter
	RowErrors         prometheus.Counter
	Redeliveries      prometheus.Counter
	DeadLettered      prometheus.Counter
	WorkerRunning     prometheus.Gauge
	InsertDuration    prometheus.Histogram

	// Feed ingestion metrics.
	FetchRows     *prometheus.CounterVec   // labels: source
	FetchErrors   *prometheus.CounterVec   // labels: source
	FetchDuration *prometheus.HistogramVec // labels: source

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: backend={lru,redis}, result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReportsAccepted,
		m.ReportsRejected,
		m.PublishErrors,
		m.PublishDuration,
		m.MessagesProcessed,
		m.ParseErrors,
		m.RowErrors,
		m.Redeliveries,
		m.DeadLettered,
		m.WorkerRunning,
		m.InsertDuration,
		m.FetchRows,
		m.FetchErrors,
		m.FetchDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	const ns = "report_pipeline"
	return &Metrics{
		ReportsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reports_accepted_total",
			Help:      "Reports accepted by the producer, by delivery mode.",
		}, []string{"mode"}),
		ReportsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reports_rejected_total",
			Help:      "Submissions rejected by validation.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "publish_errors_total",
			Help:      "Failed publishes to the reports topic.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "publish_duration_seconds",
			Help:      "Duration of a synchronous publish call.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		MessagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_processed_total",
			Help:      "Messages successfully written to the warehouse and acked.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "parse_errors_total",
			Help:      "Messages acked because the payload could not be decoded.",
		}),
		RowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "row_errors_total",
			Help:      "Rows rejected by the warehouse; acked, never retried.",
		}),
		Redeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "redeliveries_total",
			Help:      "Messages nacked and redelivered after transport errors.",
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dead_lettered_total",
			Help:      "Messages routed to the dead-letter topic after exhausting redeliveries.",
		}),
		WorkerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "worker_running",
			Help:      "1 when the subscriber loop is active, 0 when shut down.",
		}),
		InsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "insert_duration_seconds",
			Help:      "Duration of a warehouse insert for one report row.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		FetchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "fetch_rows_total",
			Help:      "Rows loaded per feed source.",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "fetch_errors_total",
			Help:      "Failed fetch ticks per feed source.",
		}, []string{"source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a complete fetch-parse-load tick per source.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300},
		}, []string{"source"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by backend and result.",
		}, []string{"backend", "result"}),
	}
}
