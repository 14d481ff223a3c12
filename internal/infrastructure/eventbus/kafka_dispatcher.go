package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaDispatcher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher writes committed events to one topic. Messages are keyed by
// stream name so a stream always lands on the same partition, in order.
type KafkaDispatcher struct {
	writer MessageWriter
	logger *slog.Logger
}

// KafkaOption configures KafkaDispatcher.
type KafkaOption func(*KafkaDispatcher)

// WithKafkaLogger sets the logger.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(d *KafkaDispatcher) {
		d.logger = logger
	}
}

// WithMessageWriter replaces the kafka.Writer, mainly for tests.
func WithMessageWriter(w MessageWriter) KafkaOption {
	return func(d *KafkaDispatcher) {
		d.writer = w
	}
}

// NewKafkaDispatcher creates a dispatcher writing to topic on brokers.
func NewKafkaDispatcher(brokers []string, topic string, opts ...KafkaOption) *KafkaDispatcher {
	d := &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch writes the batch in one call, preserving order.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, events []event.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		data, err := encodeEnvelope(evt)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.StreamName()),
			Value: data,
			Time:  evt.OccurredOn(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.EventType())},
				{Key: "event_id", Value: []byte(evt.EventID().String())},
			},
		})
	}

	if err := d.writer.WriteMessages(ctx, msgs...); err != nil {
		d.logger.ErrorContext(ctx, "failed to write events to kafka",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to write events to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// DecodeKafkaMessage rebuilds the event carried by a message written by
// KafkaDispatcher.
func DecodeKafkaMessage(registry *event.Registry, msg kafka.Message) (event.DomainEvent, error) {
	return decodeEnvelope(registry, msg.Value)
}

var _ appcore.Dispatcher = (*KafkaDispatcher)(nil)
