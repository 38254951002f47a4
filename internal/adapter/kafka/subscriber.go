package kafka

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/semaphore"

	"github.com/civicsignal/report-pipeline/internal/config"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

// Redelivery backoff bounds for nacked messages.
const (
	redeliveryBaseBackoff = time.Second
	redeliveryMaxBackoff  = 30 * time.Second
)

// Disposition is the handler's verdict on one delivered message.
type Disposition int

const (
	// Ack removes the message from redelivery.
	Ack Disposition = iota
	// Nack returns the message for redelivery with backoff; after the
	// redelivery limit it is routed to the dead-letter topic.
	Nack
)

// Message is one delivery from the subscription. Attempt counts deliveries of
// this message within the current process, starting at 1.
type Message struct {
	Value      []byte
	Attributes map[string]string
	Attempt    int
}

// Handler processes one message and decides its disposition. Handlers run
// concurrently up to the configured in-flight limit.
type Handler func(ctx context.Context, msg Message) Disposition

// Subscriber drains the durable consumer group shared by all worker
// instances. A partition's offset commits only once every lower offset in it
// has been acked or dead-lettered, so uncommitted in-flight messages at
// shutdown are redelivered by the broker on restart.
type Subscriber struct {
	reader          *kafkago.Reader
	deadLetter      *kafkago.Writer
	inFlight        *semaphore.Weighted
	maxInFlight     int64
	redeliveryLimit int
	tracker         *offsetTracker
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewSubscriber creates a consumer-group subscriber with flow control and a
// dead-letter producer.
func NewSubscriber(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Subscriber {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.ReportsTopic,
		GroupID:  cfg.GroupID,
		MaxBytes: int(cfg.MaxInFlightBytes),
	})
	dlq := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.DeadLetterTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Subscriber{
		reader:          reader,
		deadLetter:      dlq,
		inFlight:        semaphore.NewWeighted(int64(cfg.WorkerConcurrency)),
		maxInFlight:     int64(cfg.WorkerConcurrency),
		redeliveryLimit: cfg.RedeliveryLimit,
		tracker:         newOffsetTracker(),
		logger:          logger,
		metrics:         metrics,
	}
}

// offsetTracker holds back consumer-group commits until every lower fetched
// offset in the partition has finished. Handlers run concurrently and finish
// out of order; committing a high offset while a lower one is still in flight
// would skip the lower message for good if the process died.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[topicPartition]*partitionOffsets
}

type topicPartition struct {
	topic     string
	partition int
}

type partitionOffsets struct {
	pending map[int64]struct{}
	done    map[int64]struct{}
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[topicPartition]*partitionOffsets)}
}

// begin records a fetched offset as in flight.
func (t *offsetTracker) begin(msg kafkago.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partition(msg).pending[msg.Offset] = struct{}{}
}

// complete marks an offset finished and returns the highest offset now safe
// to commit. ok is false while a lower offset is still in flight. Gating on
// in-flight offsets rather than offset arithmetic keeps compacted topics
// correct, where fetched offsets are not contiguous.
func (t *offsetTracker) complete(msg kafkago.Message) (committable int64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.partition(msg)
	delete(p.pending, msg.Offset)
	p.done[msg.Offset] = struct{}{}

	minPending := int64(math.MaxInt64)
	for off := range p.pending {
		if off < minPending {
			minPending = off
		}
	}

	committable = -1
	for off := range p.done {
		if off < minPending && off > committable {
			committable = off
		}
	}
	if committable < 0 {
		return 0, false
	}
	for off := range p.done {
		if off <= committable {
			delete(p.done, off)
		}
	}
	return committable, true
}

func (t *offsetTracker) partition(msg kafkago.Message) *partitionOffsets {
	key := topicPartition{topic: msg.Topic, partition: msg.Partition}
	p, found := t.parts[key]
	if !found {
		p = &partitionOffsets{
			pending: make(map[int64]struct{}),
			done:    make(map[int64]struct{}),
		}
		t.parts[key] = p
	}
	return p
}

// Receive pulls messages and dispatches them to the handler until the context
// is cancelled. It enforces the in-flight limit before fetching more, and on
// cancellation stops pulling and waits for in-flight handlers to finish.
func (s *Subscriber) Receive(ctx context.Context, handler Handler) error {
	s.logger.Info("subscriber started",
		"topic", s.reader.Config().Topic,
		"group", s.reader.Config().GroupID,
		"max_in_flight", s.maxInFlight,
	)

	for {
		if err := s.inFlight.Acquire(ctx, 1); err != nil {
			break // context cancelled
		}

		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			s.inFlight.Release(1)
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("fetch message failed", "error", err)
			if !sleepWithContext(ctx, redeliveryBaseBackoff) {
				break
			}
			continue
		}

		s.tracker.begin(msg)
		go func(msg kafkago.Message) {
			defer s.inFlight.Release(1)
			s.deliver(ctx, msg, handler)
		}(msg)
	}

	// Drain: wait for every in-flight handler before returning.
	if err := s.inFlight.Acquire(context.Background(), s.maxInFlight); err == nil {
		s.inFlight.Release(s.maxInFlight)
	}
	s.logger.Info("subscriber stopped")
	return nil
}

// deliver runs the nack-redeliver loop for one message. Acked messages are
// marked done for commit; nacked ones redeliver with exponential backoff until
// the limit, then go to the dead-letter topic. If the context is cancelled
// mid-loop the offset stays pending, which both blocks commits past it and
// leaves it for the broker to redeliver later.
func (s *Subscriber) deliver(ctx context.Context, msg kafkago.Message, handler Handler) {
	backoff := redeliveryBaseBackoff

	for attempt := 1; attempt <= s.redeliveryLimit; attempt++ {
		disposition := handler(ctx, Message{
			Value:      msg.Value,
			Attributes: headersToMap(msg.Headers),
			Attempt:    attempt,
		})
		if disposition == Ack {
			s.finish(ctx, msg)
			return
		}

		s.logger.Warn("message nacked",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
		)
		if attempt == s.redeliveryLimit {
			break
		}
		if !sleepWithContext(ctx, backoff) {
			return // shutdown: leave uncommitted for broker redelivery
		}
		backoff = nextBackoff(backoff, redeliveryMaxBackoff)
	}

	s.routeToDeadLetter(ctx, msg)
}

// routeToDeadLetter forwards an exhausted message to the dead-letter topic and
// marks it done for commit. If the dead-letter write itself fails, the offset
// stays pending so the message is not lost.
func (s *Subscriber) routeToDeadLetter(ctx context.Context, msg kafkago.Message) {
	dlqMsg := deadLetterMessage(msg, s.redeliveryLimit)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.deadLetter.WriteMessages(writeCtx, dlqMsg); err != nil {
		s.logger.Error("dead-letter write failed",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	s.metrics.DeadLettered.Inc()
	s.logger.Warn("message dead-lettered",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	s.finish(ctx, msg)
}

// finish marks the message done and commits the highest partition offset with
// no lower message still in flight. The commit survives context cancellation
// so already-finished work is not redelivered after shutdown.
func (s *Subscriber) finish(ctx context.Context, msg kafkago.Message) {
	committable, ok := s.tracker.complete(msg)
	if !ok {
		return
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	commit := kafkago.Message{Topic: msg.Topic, Partition: msg.Partition, Offset: committable}
	if err := s.reader.CommitMessages(commitCtx, commit); err != nil {
		s.logger.Warn("commit failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", committable,
			"error", err,
		)
	}
}

// Close releases the reader and dead-letter writer.
func (s *Subscriber) Close() error {
	if err := s.reader.Close(); err != nil {
		_ = s.deadLetter.Close()
		return err
	}
	return s.deadLetter.Close()
}

// deadLetterMessage copies the original payload and headers, annotating the
// source coordinates and delivery count.
func deadLetterMessage(msg kafkago.Message, attempts int) kafkago.Message {
	headers := append([]kafkago.Header(nil), msg.Headers...)
	headers = append(headers,
		kafkago.Header{Key: "dlq_source_topic", Value: []byte(msg.Topic)},
		kafkago.Header{Key: "dlq_source_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafkago.Header{Key: "dlq_source_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafkago.Header{Key: "dlq_delivery_attempts", Value: []byte(strconv.Itoa(attempts))},
	)
	return kafkago.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
