package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// InMemoryBus delivers events synchronously to in-process handlers.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewInMemoryBus creates a bus without subscriptions.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]EventHandler)}
}

// Subscribe registers handler for eventType, or for every type with AllEvents.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) error {
	if eventType == "" {
		return errors.New("event type cannot be empty")
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Publish delivers one event.
func (b *InMemoryBus) Publish(ctx context.Context, evt event.DomainEvent) error {
	if evt == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	handlers := append(append([]EventHandler(nil), b.handlers[evt.EventType()]...), b.handlers[AllEvents]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("handler for %s: %w", evt.EventType(), err))
		}
	}
	return errors.Join(errs...)
}

// Dispatch delivers the batch in order. Every handler sees every event even
// if an earlier one failed.
func (b *InMemoryBus) Dispatch(ctx context.Context, events []event.DomainEvent) error {
	var errs []error
	for _, evt := range events {
		if err := b.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandlerCount returns the number of handlers registered for an event type.
func (b *InMemoryBus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

var (
	_ event.Bus          = (*InMemoryBus)(nil)
	_ appcore.Dispatcher = (*InMemoryBus)(nil)
)
