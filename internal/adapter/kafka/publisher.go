// Package kafka binds the pipeline to its message broker. The binding gives
// producers synchronous, size-bounded publishes and gives the worker
// at-least-once delivery with bounded concurrency, in-binding redelivery, and
// a dead-letter topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/civicsignal/report-pipeline/internal/config"
)

// Publisher batching limits. Batching is transparent to callers: WriteMessages
// returns only after the broker has durably accepted the message.
const (
	publishBatchSize    = 100
	publishBatchBytes   = 1 << 20 // 1 MiB
	publishBatchTimeout = 50 * time.Millisecond
)

// Publisher produces report messages to the submissions topic.
type Publisher struct {
	writer  *kafkago.Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a producer for the configured reports topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.ReportsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    publishBatchSize,
		BatchBytes:   publishBatchBytes,
		BatchTimeout: publishBatchTimeout,
	}
	return &Publisher{writer: w, timeout: cfg.PublishTimeout, logger: logger}
}

// Publish sends one message keyed by the report ID, with attributes carried as
// headers. The call blocks until the broker acknowledges the write or the
// publish timeout expires.
func (p *Publisher) Publish(ctx context.Context, key, value []byte, attrs map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:     key,
		Value:   value,
		Headers: buildHeaders(attrs),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes pending batches and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// buildHeaders converts attributes to Kafka headers in a deterministic order.
func buildHeaders(attrs map[string]string) []kafkago.Header {
	if len(attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, len(keys))
	for i, k := range keys {
		headers[i] = kafkago.Header{Key: k, Value: []byte(attrs[k])}
	}
	return headers
}

// headersToMap flattens Kafka headers into an attribute map.
func headersToMap(headers []kafkago.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for _, h := range headers {
		attrs[h.Key] = string(h.Value)
	}
	return attrs
}
