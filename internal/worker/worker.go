// Package worker consumes report messages from the durable subscription and
// writes them into the warehouse. Delivery is at-least-once: the warehouse
// insert is idempotent on report_id, so redelivered messages are harmless.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/civicsignal/report-pipeline/internal/adapter/kafka"
	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

// Worker turns consumed messages into warehouse rows.
type Worker struct {
	writer       warehouse.Writer
	reportsTable string
	logger       *slog.Logger
	metrics      *observability.Metrics

	processed atomic.Int64
	ready     atomic.Bool
}

// New creates a worker writing reports into reportsTable.
func New(writer warehouse.Writer, reportsTable string, logger *slog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		writer:       writer,
		reportsTable: reportsTable,
		logger:       logger,
		metrics:      metrics,
	}
}

// Processed reports how many messages this instance has written and acked.
func (w *Worker) Processed() int64 {
	return w.processed.Load()
}

// Ready reports whether the worker has finished startup and is consuming.
func (w *Worker) Ready() bool {
	return w.ready.Load()
}

// SetReady flips the readiness flag once the subscription is established.
func (w *Worker) SetReady(ready bool) {
	w.ready.Store(ready)
}

// Handle processes one delivered message.
//
// Malformed payloads and warehouse row rejections are terminal: both are
// acked and counted, never retried. Only transport-level failures nack, which
// hands the message back for redelivery.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) kafka.Disposition {
	report, err := domain.DeserializeReport(msg.Value)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			w.metrics.ParseErrors.Inc()
			w.logger.Error("dropping undecodable message",
				"error", err,
				"attempt", msg.Attempt,
				"report_id", msg.Attributes["report_id"],
			)
			return kafka.Ack
		}
		w.metrics.ParseErrors.Inc()
		w.logger.Error("dropping unreadable message", "error", err)
		return kafka.Ack
	}

	start := time.Now()
	result, err := w.writer.InsertRows(ctx, w.reportsTable, []warehouse.Row{report.WarehouseRow()})
	w.metrics.InsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		w.logger.Warn("warehouse insert failed, message will redeliver",
			"report_id", report.ReportID,
			"attempt", msg.Attempt,
			"error", err,
		)
		w.metrics.Redeliveries.Inc()
		return kafka.Nack
	}

	if len(result.RowErrors) > 0 {
		w.metrics.RowErrors.Inc()
		w.logger.Error("warehouse rejected report row",
			"report_id", report.ReportID,
			"reason", result.RowErrors[0].Reason,
		)
		return kafka.Ack
	}

	w.processed.Add(1)
	w.metrics.MessagesProcessed.Inc()
	w.logger.Debug("report written",
		"report_id", report.ReportID,
		"report_type", report.ReportType,
		"severity", report.Severity,
	)
	return kafka.Ack
}
