package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// RedisEventBus dispatches events over Redis Pub/Sub, one channel per event
// type, and delivers received events to local handlers.
type RedisEventBus struct {
	client        *redis.Client
	registry      *event.Registry
	pubsub        *redis.PubSub
	pubsubMu      sync.RWMutex
	handlers      map[string][]EventHandler
	handlersMu    sync.RWMutex
	running       bool
	runningMu     sync.RWMutex
	shutdown      chan struct{}
	wg            sync.WaitGroup
	logger        *slog.Logger
	retryConfig   RetryConfig
	channelPrefix string
	deadLetters   *DeadLetterHandler
}

// Option configures a RedisEventBus.
type Option func(*RedisEventBus)

// WithLogger sets the logger for the event bus.
func WithLogger(logger *slog.Logger) Option {
	return func(b *RedisEventBus) {
		b.logger = logger
	}
}

// WithRetryConfig sets the retry configuration for publishing and handling.
func WithRetryConfig(config RetryConfig) Option {
	return func(b *RedisEventBus) {
		b.retryConfig = config
	}
}

// WithChannelPrefix sets a prefix for Redis channel names.
func WithChannelPrefix(prefix string) Option {
	return func(b *RedisEventBus) {
		b.channelPrefix = prefix
	}
}

// WithDeadLetterHandler stores events whose handlers failed after all retries.
func WithDeadLetterHandler(h *DeadLetterHandler) Option {
	return func(b *RedisEventBus) {
		b.deadLetters = h
	}
}

// NewRedisEventBus creates a new Redis-based event bus. registry decodes
// received events; it may be nil for a publish-only bus.
func NewRedisEventBus(client *redis.Client, registry *event.Registry, opts ...Option) *RedisEventBus {
	b := &RedisEventBus{
		client:        client,
		registry:      registry,
		handlers:      make(map[string][]EventHandler),
		shutdown:      make(chan struct{}),
		logger:        slog.Default(),
		retryConfig:   DefaultRetryConfig(),
		channelPrefix: defaultChannelPrefix,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Publish publishes one event, retrying transient failures.
func (b *RedisEventBus) Publish(ctx context.Context, evt event.DomainEvent) error {
	data, err := encodeEnvelope(evt)
	if err != nil {
		return err
	}

	channel := b.channelName(evt.EventType())
	err = b.retryConfig.retry(ctx, func() error {
		return b.client.Publish(ctx, channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to Redis: %w", err)
	}

	b.logger.DebugContext(ctx, "event published",
		slog.String("event_id", evt.EventID().String()),
		slog.String("event_type", evt.EventType()),
		slog.String("stream", evt.StreamName()),
		slog.String("channel", channel),
	)

	return nil
}

// Dispatch publishes the batch in order and stops at the first failure so
// that later events never overtake an unpublished one.
func (b *RedisEventBus) Dispatch(ctx context.Context, events []event.DomainEvent) error {
	for i, evt := range events {
		if err := b.Publish(ctx, evt); err != nil {
			return fmt.Errorf("dispatch stopped at event %d of %d: %w", i+1, len(events), err)
		}
	}
	return nil
}

// Subscribe registers an event handler for a specific event type, or for
// every type with AllEvents. Handlers are called concurrently.
func (b *RedisEventBus) Subscribe(eventType string, handler EventHandler) error {
	if eventType == "" {
		return errors.New("event type cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	return nil
}

// Start begins listening for events on the prefixed channels.
// This method blocks until Shutdown is called or the context is cancelled.
func (b *RedisEventBus) Start(ctx context.Context) error {
	if b.registry == nil {
		return errors.New("event bus has no registry to decode events")
	}

	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("event bus is already running")
	}
	b.running = true
	b.runningMu.Unlock()

	pattern := b.channelPrefix + "*"
	pubsub := b.client.PSubscribe(ctx, pattern)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to channels: %w", err)
	}

	b.pubsubMu.Lock()
	b.pubsub = pubsub
	b.pubsubMu.Unlock()

	b.logger.InfoContext(ctx, "event bus started", slog.String("pattern", pattern))

	msgCh := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			b.logger.InfoContext(ctx, "event bus stopping due to context cancellation")
			return ctx.Err()

		case <-b.shutdown:
			b.logger.InfoContext(ctx, "event bus stopping due to shutdown signal")
			return nil

		case msg, ok := <-msgCh:
			if !ok {
				b.logger.WarnContext(ctx, "message channel closed")
				return nil
			}
			b.handleMessage(ctx, msg)
		}
	}
}

// Shutdown gracefully stops the event bus.
// It waits for all pending event handlers to complete.
func (b *RedisEventBus) Shutdown() error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	close(b.shutdown)

	b.wg.Wait()

	b.pubsubMu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.pubsubMu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close pubsub: %w", err)
		}
	}

	return nil
}

// IsRunning returns true if the event bus is currently running.
func (b *RedisEventBus) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// HandlerCount returns the number of handlers registered for an event type.
func (b *RedisEventBus) HandlerCount(eventType string) int {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	return len(b.handlers[eventType])
}

// channelName returns the Redis channel name for an event type.
func (b *RedisEventBus) channelName(eventType string) string {
	return b.channelPrefix + eventType
}

func (b *RedisEventBus) handleMessage(ctx context.Context, msg *redis.Message) {
	evt, err := decodeEnvelope(b.registry, []byte(msg.Payload))
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to decode event",
			slog.String("channel", msg.Channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if eventType := strings.TrimPrefix(msg.Channel, b.channelPrefix); eventType != evt.EventType() {
		b.logger.WarnContext(ctx, "event type does not match channel",
			slog.String("channel", msg.Channel),
			slog.String("event_type", evt.EventType()),
		)
	}

	b.handlersMu.RLock()
	handlers := append(append([]EventHandler(nil), b.handlers[evt.EventType()]...), b.handlers[AllEvents]...)
	b.handlersMu.RUnlock()

	for i, handler := range handlers {
		b.wg.Add(1)
		go b.executeHandler(ctx, handler, evt, i)
	}
}

// executeHandler runs a single event handler with retry logic.
func (b *RedisEventBus) executeHandler(
	ctx context.Context,
	handler EventHandler,
	evt event.DomainEvent,
	handlerIndex int,
) {
	defer b.wg.Done()

	attempt := 0
	err := b.retryConfig.retry(ctx, func() error {
		defer func() { attempt++ }()
		if errHandle := handler(ctx, evt); errHandle != nil {
			b.logger.WarnContext(ctx, "event handler failed",
				slog.String("event_type", evt.EventType()),
				slog.String("stream", evt.StreamName()),
				slog.Int("handler_index", handlerIndex),
				slog.Int("attempt", attempt),
				slog.String("error", errHandle.Error()),
			)
			return errHandle
		}
		return nil
	})
	if err == nil {
		return
	}

	b.logger.ErrorContext(ctx, "event handler failed after all retries",
		slog.String("event_type", evt.EventType()),
		slog.String("stream", evt.StreamName()),
		slog.Int("handler_index", handlerIndex),
		slog.Int("max_retries", b.retryConfig.MaxRetries),
		slog.String("error", err.Error()),
	)
	if b.deadLetters != nil {
		b.deadLetters.Handle(ctx, evt, err)
	}
}

var (
	_ event.Bus          = (*RedisEventBus)(nil)
	_ appcore.Dispatcher = (*RedisEventBus)(nil)
)
