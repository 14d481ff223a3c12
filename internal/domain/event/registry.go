package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lllypuk/eventcore/internal/domain/errs"
)

// Factory creates an empty instance of one event variant.
type Factory func() DomainEvent

// Registry maps event type tags to the closed set of variants an aggregate declares.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry populated with the given factories.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{factories: make(map[string]Factory, len(factories))}
	if err := r.Register(factories...); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on duplicate type tags.
func MustNewRegistry(factories ...Factory) *Registry {
	r, err := NewRegistry(factories...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds factories. A type tag may only be registered once.
func (r *Registry) Register(factories ...Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range factories {
		eventType := f().EventType()
		if eventType == "" {
			return fmt.Errorf("%w: empty event type", errs.ErrInvalidArgument)
		}
		if _, exists := r.factories[eventType]; exists {
			return fmt.Errorf("%w: event type %q registered twice", errs.ErrInvalidArgument, eventType)
		}
		r.factories[eventType] = f
	}

	return nil
}

// Decode rebuilds a concrete event from its record.
func (r *Registry) Decode(rec Record) (DomainEvent, error) {
	r.mu.RLock()
	f, ok := r.factories[rec.EventType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownEvent, rec.EventType)
	}

	evt := f()
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, evt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %s v%d: %w", rec.EventType, rec.Version, err)
		}
	}
	evt.Base().restore(rec)

	return evt, nil
}

// DecodeMany decodes records in order.
func (r *Registry) DecodeMany(recs []Record) ([]DomainEvent, error) {
	events := make([]DomainEvent, 0, len(recs))
	for i, rec := range recs {
		evt, err := r.Decode(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event at index %d: %w", i, err)
		}
		events = append(events, evt)
	}
	return events, nil
}
