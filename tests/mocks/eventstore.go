package mocks

import (
	"context"
	"sync"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// EventStore wraps a real appcore.EventStore, counts calls and can inject
// a one-shot failure into the next call of a given method.
type EventStore struct {
	appcore.EventStore

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
}

// NewEventStore wraps inner
func NewEventStore(inner appcore.EventStore) *EventStore {
	return &EventStore{
		EventStore: inner,
		calls:      make(map[string]int),
		failures:   make(map[string]error),
	}
}

// FailNext makes the next call of method return err without reaching the
// wrapped store.
func (s *EventStore) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// CallCount returns how often method was called
func (s *EventStore) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *EventStore) record(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[method]++
	err := s.failures[method]
	delete(s.failures, method)
	return err
}

// Get implements appcore.EventStore
func (s *EventStore) Get(ctx context.Context, stream string) ([]event.Record, error) {
	if err := s.record("Get"); err != nil {
		return nil, err
	}
	return s.EventStore.Get(ctx, stream)
}

// GetByVersion implements appcore.EventStore
func (s *EventStore) GetByVersion(ctx context.Context, stream string, version int) (event.Record, error) {
	if err := s.record("GetByVersion"); err != nil {
		return event.Record{}, err
	}
	return s.EventStore.GetByVersion(ctx, stream, version)
}

// GetLastEvent implements appcore.EventStore
func (s *EventStore) GetLastEvent(ctx context.Context, stream string) (event.Record, error) {
	if err := s.record("GetLastEvent"); err != nil {
		return event.Record{}, err
	}
	return s.EventStore.GetLastEvent(ctx, stream)
}

// Append implements appcore.EventStore
func (s *EventStore) Append(
	ctx context.Context,
	stream string,
	records []event.Record,
	expectedVersion int,
) ([]event.Record, error) {
	if err := s.record("Append"); err != nil {
		return nil, err
	}
	return s.EventStore.Append(ctx, stream, records, expectedVersion)
}

// Delete implements appcore.EventStore
func (s *EventStore) Delete(ctx context.Context, stream string) error {
	if err := s.record("Delete"); err != nil {
		return err
	}
	return s.EventStore.Delete(ctx, stream)
}
