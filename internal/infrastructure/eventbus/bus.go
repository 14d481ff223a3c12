// Package eventbus provides appcore.Dispatcher implementations and the
// subscriber side of event delivery.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/event"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// Default retry configuration constants.
const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultChannelPrefix  = "events:"
)

// EventHandler is a function that handles domain events.
type EventHandler func(ctx context.Context, event event.DomainEvent) error

// RetryConfig configures retry behavior for publishing and handling.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		BackoffFactor:  defaultBackoffFactor,
	}
}

// next returns the backoff following current.
func (c RetryConfig) next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.BackoffFactor)
	if next > c.MaxBackoff {
		return c.MaxBackoff
	}
	return next
}

// retry runs fn until it succeeds, attempts are exhausted or ctx is done.
func (c RetryConfig) retry(ctx context.Context, fn func() error) error {
	backoff := c.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = c.next(backoff)
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// encodeEnvelope serializes an event into its wire form, the persisted record.
func encodeEnvelope(evt event.DomainEvent) ([]byte, error) {
	if evt == nil {
		return nil, errors.New("event cannot be nil")
	}
	rec, err := event.ToRecord(evt)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event envelope: %w", err)
	}
	return data, nil
}

// decodeEnvelope rebuilds the concrete event from its wire form.
func decodeEnvelope(registry *event.Registry, data []byte) (event.DomainEvent, error) {
	var rec event.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	return registry.Decode(rec)
}
