package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/lllypuk/eventcore/internal/domain/event"
)

// Default dead letter queue configuration.
const (
	deadLetterQueueKey    = "events:dead_letter"
	defaultMaxDeadLetters = 1000
	maxPayloadLogLength   = 500
)

// LoggingHandler logs every domain event it receives.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a new LoggingHandler.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHandler{
		logger: logger,
	}
}

// Handle logs the domain event.
func (h *LoggingHandler) Handle(ctx context.Context, evt event.DomainEvent) error {
	attrs := []any{
		slog.String("event_type", evt.EventType()),
		slog.String("event_id", evt.EventID().String()),
		slog.String("stream", evt.StreamName()),
		slog.Int("version", evt.Version()),
		slog.Int64("sequence", evt.Sequence()),
		slog.Time("occurred_on", evt.OccurredOn()),
	}

	metadata := evt.Metadata()
	if metadata.UserID != "" {
		attrs = append(attrs, slog.String("user_id", metadata.UserID))
	}
	if metadata.CorrelationID != "" {
		attrs = append(attrs, slog.String("correlation_id", metadata.CorrelationID))
	}

	if payload, err := json.Marshal(evt); err == nil {
		s := string(payload)
		if len(s) > maxPayloadLogLength {
			s = s[:maxPayloadLogLength] + "..."
		}
		attrs = append(attrs, slog.String("payload", s))
	}

	h.logger.InfoContext(ctx, "domain event", attrs...)

	return nil
}

// AsEventHandler converts LoggingHandler to EventHandler function type.
func (h *LoggingHandler) AsEventHandler() EventHandler {
	return h.Handle
}

// DeadLetterHandler stores failed events in Redis for later analysis.
type DeadLetterHandler struct {
	client        *redis.Client
	logger        *slog.Logger
	queueKey      string
	maxDeadLetter int64
}

// DeadLetterEntry represents a failed event stored in the dead letter queue.
type DeadLetterEntry struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Stream    string          `json:"stream"`
	Version   int             `json:"version"`
	Error     string          `json:"error"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// DeadLetterHandlerOption configures DeadLetterHandler.
type DeadLetterHandlerOption func(*DeadLetterHandler)

// WithDeadLetterQueueKey sets a custom key for the dead letter queue.
func WithDeadLetterQueueKey(key string) DeadLetterHandlerOption {
	return func(h *DeadLetterHandler) {
		h.queueKey = key
	}
}

// WithDeadLetterLogger sets the logger for DeadLetterHandler.
func WithDeadLetterLogger(logger *slog.Logger) DeadLetterHandlerOption {
	return func(h *DeadLetterHandler) {
		h.logger = logger
	}
}

// WithMaxDeadLetters sets the maximum number of entries to keep in the queue.
func WithMaxDeadLetters(maxEntries int64) DeadLetterHandlerOption {
	return func(h *DeadLetterHandler) {
		h.maxDeadLetter = maxEntries
	}
}

// NewDeadLetterHandler creates a new DeadLetterHandler.
func NewDeadLetterHandler(client *redis.Client, opts ...DeadLetterHandlerOption) *DeadLetterHandler {
	h := &DeadLetterHandler{
		client:        client,
		logger:        slog.Default(),
		queueKey:      deadLetterQueueKey,
		maxDeadLetter: defaultMaxDeadLetters,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle stores a failed event in the dead letter queue.
func (h *DeadLetterHandler) Handle(ctx context.Context, evt event.DomainEvent, err error) {
	entry := DeadLetterEntry{
		EventID:   evt.EventID().String(),
		EventType: evt.EventType(),
		Stream:    evt.StreamName(),
		Version:   evt.Version(),
		Error:     err.Error(),
		Timestamp: evt.OccurredOn().Unix(),
	}
	if payload, errPayload := json.Marshal(evt); errPayload == nil {
		entry.Payload = payload
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		h.logger.ErrorContext(ctx, "failed to marshal dead letter entry",
			slog.String("event_type", evt.EventType()),
			slog.String("error", marshalErr.Error()),
		)
		return
	}

	if pushErr := h.client.LPush(ctx, h.queueKey, string(data)).Err(); pushErr != nil {
		h.logger.ErrorContext(ctx, "failed to push to dead letter queue",
			slog.String("event_type", evt.EventType()),
			slog.String("error", pushErr.Error()),
		)
		return
	}

	// Trim queue to max size
	if trimErr := h.client.LTrim(ctx, h.queueKey, 0, h.maxDeadLetter-1).Err(); trimErr != nil {
		h.logger.WarnContext(ctx, "failed to trim dead letter queue",
			slog.String("error", trimErr.Error()),
		)
	}

	h.logger.ErrorContext(ctx, "event moved to dead letter queue",
		slog.String("event_type", evt.EventType()),
		slog.String("stream", evt.StreamName()),
		slog.String("original_error", err.Error()),
	)
}

// GetDeadLetters retrieves entries from the dead letter queue.
func (h *DeadLetterHandler) GetDeadLetters(ctx context.Context, count int64) ([]DeadLetterEntry, error) {
	requestedCount := count
	if requestedCount <= 0 {
		requestedCount = 10
	}

	data, rangeErr := h.client.LRange(ctx, h.queueKey, 0, requestedCount-1).Result()
	if rangeErr != nil {
		return nil, fmt.Errorf("failed to get dead letters: %w", rangeErr)
	}

	entries := make([]DeadLetterEntry, 0, len(data))
	for _, d := range data {
		var entry DeadLetterEntry
		if unmarshalErr := json.Unmarshal([]byte(d), &entry); unmarshalErr != nil {
			h.logger.WarnContext(ctx, "failed to unmarshal dead letter entry",
				slog.String("error", unmarshalErr.Error()),
			)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// QueueLength returns the number of entries in the dead letter queue.
func (h *DeadLetterHandler) QueueLength(ctx context.Context) (int64, error) {
	return h.client.LLen(ctx, h.queueKey).Result()
}
