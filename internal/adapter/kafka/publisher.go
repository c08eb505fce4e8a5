package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sitaware/internal/engine"
	"github.com/couchcryptid/sitaware/internal/observability"
)

// messageWriter is the subset of kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher forwards data-ready snapshots to a Kafka topic. Handle never
// blocks the engine: snapshots are queued and dropped when the queue is full.
type Publisher struct {
	writer  messageWriter
	queue   chan engine.Snapshot
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a producer for the snapshot topic.
func NewPublisher(brokers []string, topic string, buffer int, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newPublisher(w, buffer, logger, metrics)
}

func newPublisher(w messageWriter, buffer int, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	if buffer < 1 {
		buffer = 1
	}
	return &Publisher{
		writer:  w,
		queue:   make(chan engine.Snapshot, buffer),
		logger:  logger,
		metrics: metrics,
	}
}

// Handle is an engine subscriber. It queues data-ready snapshots and ignores
// every other event.
func (p *Publisher) Handle(ev engine.Event) {
	if ev.Type != engine.EventDataReady || ev.Snapshot == nil {
		return
	}
	select {
	case p.queue <- *ev.Snapshot:
	default:
		p.metrics.SnapshotsPublished.WithLabelValues("dropped").Inc()
		p.logger.Warn("snapshot queue full, dropping snapshot", "snapshot_id", ev.Snapshot.ID)
	}
}

// Run writes queued snapshots until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-p.queue:
			if err := p.publish(ctx, snap); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.metrics.SnapshotsPublished.WithLabelValues("error").Inc()
				p.logger.Error("publish snapshot failed", "snapshot_id", snap.ID, "error", err)
				continue
			}
			p.metrics.SnapshotsPublished.WithLabelValues("ok").Inc()
		}
	}
}

func (p *Publisher) publish(ctx context.Context, snap engine.Snapshot) error {
	msg, err := serializeToMessage(snap)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Snapshot into a Kafka message keyed by its ID.
func serializeToMessage(snap engine.Snapshot) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.ID.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(engine.EventDataReady)},
			{Key: "generated_at", Value: []byte(snap.GeneratedAt.Format(time.RFC3339))},
			{Key: "status_level", Value: []byte(snap.StatusLevel)},
		},
	}, nil
}
