package mocks

import (
	"context"
	"sync"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// Dispatcher records every dispatched batch for assertions
type Dispatcher struct {
	mu        sync.RWMutex
	batches   [][]event.DomainEvent
	failError error
}

var _ appcore.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a new recording dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch records the batch. When a failure is set the batch is still
// recorded and the error is returned.
func (d *Dispatcher) Dispatch(_ context.Context, events []event.DomainEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.batches = append(d.batches, append([]event.DomainEvent{}, events...))
	return d.failError
}

// FailWith makes every following Dispatch return err
func (d *Dispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failError = err
}

// BatchCount returns the number of Dispatch calls
func (d *Dispatcher) BatchCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.batches)
}

// PublishedEvents returns all dispatched events in order
func (d *Dispatcher) PublishedEvents() []event.DomainEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var events []event.DomainEvent
	for _, batch := range d.batches {
		events = append(events, batch...)
	}
	return events
}

// PublishedEventsByType returns dispatched events of a specific type
func (d *Dispatcher) PublishedEventsByType(eventType string) []event.DomainEvent {
	var events []event.DomainEvent
	for _, evt := range d.PublishedEvents() {
		if evt.EventType() == eventType {
			events = append(events, evt)
		}
	}
	return events
}

// Reset clears the recorded batches and the failure
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.batches = nil
	d.failError = nil
}
