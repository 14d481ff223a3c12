package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// InMemoryEventStore implements appcore.EventStore in memory for tests and
// single-process use.
type InMemoryEventStore struct {
	mu       sync.RWMutex
	streams  map[string][]event.Record
	deleted  map[string]bool
	sequence int64
	policy   appcore.ExpectedVersionPolicy
}

// InMemoryOption configures InMemoryEventStore.
type InMemoryOption func(*InMemoryEventStore)

// WithVersionPolicy overrides the default LastPlusOne policy.
func WithVersionPolicy(p appcore.ExpectedVersionPolicy) InMemoryOption {
	return func(s *InMemoryEventStore) {
		s.policy = p
	}
}

// NewInMemoryEventStore creates an empty in-memory event store.
func NewInMemoryEventStore(opts ...InMemoryOption) *InMemoryEventStore {
	s := &InMemoryEventStore{
		streams: make(map[string][]event.Record),
		deleted: make(map[string]bool),
		policy:  appcore.LastPlusOne{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VersionPolicy returns the configured policy.
func (s *InMemoryEventStore) VersionPolicy() appcore.ExpectedVersionPolicy {
	return s.policy
}

// Get returns a copy of the stream.
func (s *InMemoryEventStore) Get(_ context.Context, stream string) ([]event.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.deleted[stream] {
		return nil, fmt.Errorf("%w: %s", errs.ErrStreamDeleted, stream)
	}

	// copy to keep stored records immutable
	records := s.streams[stream]
	out := make([]event.Record, len(records))
	copy(out, records)
	return out, nil
}

// GetByVersion returns the record at version.
func (s *InMemoryEventStore) GetByVersion(_ context.Context, stream string, version int) (event.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.deleted[stream] {
		return event.Record{}, fmt.Errorf("%w: %s", errs.ErrStreamDeleted, stream)
	}

	records := s.streams[stream]
	if version < 0 || version >= len(records) {
		return event.Record{}, fmt.Errorf("%w: %s v%d", errs.ErrStreamNotFound, stream, version)
	}
	return records[version], nil
}

// GetLastEvent returns the record with the highest version.
func (s *InMemoryEventStore) GetLastEvent(_ context.Context, stream string) (event.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.deleted[stream] {
		return event.Record{}, fmt.Errorf("%w: %s", errs.ErrStreamDeleted, stream)
	}

	records := s.streams[stream]
	if len(records) == 0 {
		return event.Record{}, fmt.Errorf("%w: %s", errs.ErrStreamNotFound, stream)
	}
	return records[len(records)-1], nil
}

// Append stores records when the policy accepts expectedVersion.
func (s *InMemoryEventStore) Append(
	_ context.Context,
	stream string,
	records []event.Record,
	expectedVersion int,
) ([]event.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted[stream] {
		return nil, fmt.Errorf("%w: %s", errs.ErrStreamDeleted, stream)
	}

	lastVersion := len(s.streams[stream]) + noVersion
	if s.policy.Conflicts(lastVersion, expectedVersion) {
		return nil, errs.NewConflictError(stream, lastVersion, expectedVersion)
	}
	if err := validateBatch(stream, records, lastVersion); err != nil {
		return nil, err
	}

	stored := make([]event.Record, len(records))
	for i, rec := range records {
		s.sequence++
		rec.Sequence = s.sequence
		stored[i] = rec
	}
	s.streams[stream] = append(s.streams[stream], stored...)

	out := make([]event.Record, len(stored))
	copy(out, stored)
	return out, nil
}

// Delete marks the stream deleted. Deleting twice is a no-op.
func (s *InMemoryEventStore) Delete(_ context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted[stream] = true
	return nil
}

// Streams returns the names of all live streams, sorted.
func (s *InMemoryEventStore) Streams() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		if !s.deleted[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Clear drops every stream (for tests).
func (s *InMemoryEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streams = make(map[string][]event.Record)
	s.deleted = make(map[string]bool)
}
