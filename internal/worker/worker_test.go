package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/report-pipeline/internal/adapter/kafka"
	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

const reportsTable = "crowdsource_reports"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWorker(mem *warehouse.Memory) *Worker {
	return New(mem, reportsTable, discardLogger(), observability.NewMetricsForTesting())
}

func validMessage(t *testing.T) kafka.Message {
	t.Helper()
	report := domain.Report{
		ReportID:    "r-123",
		ReportType:  domain.TypeHealth,
		Severity:    domain.SeverityHigh,
		Timestamp:   time.Now().UTC().Add(-time.Minute),
		Timeframe:   domain.TimeframeToday,
		Description: "Dozens reporting nausea downtown",
		Status:      domain.StatusPending,
	}
	data, err := domain.SerializeReport(report)
	require.NoError(t, err)
	return kafka.Message{Value: data, Attempt: 1}
}

func TestHandleWritesReport(t *testing.T) {
	mem := warehouse.NewMemory()
	w := newWorker(mem)

	got := w.Handle(context.Background(), validMessage(t))
	assert.Equal(t, kafka.Ack, got)

	rows := mem.Rows(reportsTable)
	require.Len(t, rows, 1)
	assert.Equal(t, "r-123", rows[0]["report_id"])
	assert.Equal(t, int64(1), w.Processed())
}

func TestHandleAcksMalformedPayload(t *testing.T) {
	mem := warehouse.NewMemory()
	w := newWorker(mem)

	got := w.Handle(context.Background(), kafka.Message{Value: []byte("{broken"), Attempt: 1})
	assert.Equal(t, kafka.Ack, got)
	assert.Empty(t, mem.Rows(reportsTable))
	assert.Equal(t, int64(0), w.Processed())
}

func TestHandleAcksInvalidReport(t *testing.T) {
	mem := warehouse.NewMemory()
	w := newWorker(mem)

	// Valid JSON, but missing required fields.
	got := w.Handle(context.Background(), kafka.Message{Value: []byte(`{"report_id":"r-9"}`), Attempt: 1})
	assert.Equal(t, kafka.Ack, got)
	assert.Empty(t, mem.Rows(reportsTable))
}

func TestHandleAcksRowError(t *testing.T) {
	mem := warehouse.NewMemory()
	mem.RejectRow = func(table string, row warehouse.Row) (string, bool) {
		return "value too long for column description", true
	}
	w := newWorker(mem)

	got := w.Handle(context.Background(), validMessage(t))
	assert.Equal(t, kafka.Ack, got, "row errors are terminal and must not redeliver")
	assert.Equal(t, int64(0), w.Processed())
}

func TestHandleNacksTransportError(t *testing.T) {
	mem := warehouse.NewMemory()
	mem.FailTransport = errors.New("connection refused")
	w := newWorker(mem)

	got := w.Handle(context.Background(), validMessage(t))
	assert.Equal(t, kafka.Nack, got)
	assert.Equal(t, int64(0), w.Processed())
}

func TestProcessedCountsAcrossMessages(t *testing.T) {
	mem := warehouse.NewMemory()
	w := newWorker(mem)

	for i := 0; i < 3; i++ {
		w.Handle(context.Background(), validMessage(t))
	}
	assert.Equal(t, int64(3), w.Processed())
	assert.Len(t, mem.Rows(reportsTable), 3)
}

func TestReadiness(t *testing.T) {
	w := newWorker(warehouse.NewMemory())
	assert.False(t, w.Ready())
	w.SetReady(true)
	assert.True(t, w.Ready())
}
