package appcore

import (
	"context"

	"github.com/lllypuk/eventcore/internal/domain/event"
)

// EventStore is the persistence adapter for event streams.
// The interface is declared here (on the consumer side - application layer),
// not in infrastructure, following idiomatic Go approach.
type EventStore interface {
	// Get returns every event of the stream in version order.
	// Returns errs.ErrStreamDeleted for a deleted stream; an unknown stream
	// yields an empty slice.
	Get(ctx context.Context, stream string) ([]event.Record, error)

	// GetByVersion returns the single event at version.
	// Returns errs.ErrStreamNotFound when no such event exists.
	GetByVersion(ctx context.Context, stream string, version int) (event.Record, error)

	// GetLastEvent returns the event with the highest version.
	GetLastEvent(ctx context.Context, stream string) (event.Record, error)

	// Append stores records atomically after comparing the stream's last
	// version against expectedVersion using VersionPolicy().Conflicts.
	// A rejected append returns *errs.ConflictError and leaves the stream unchanged.
	// The returned records carry the sequence numbers assigned by the backend.
	Append(ctx context.Context, stream string, records []event.Record, expectedVersion int) ([]event.Record, error)

	// Delete marks the stream deleted. Deletion is terminal.
	Delete(ctx context.Context, stream string) error

	// VersionPolicy returns the optimistic-concurrency token rule of the backend.
	VersionPolicy() ExpectedVersionPolicy
}

// ExpectedVersionPolicy lets each backend define its own concurrency token.
type ExpectedVersionPolicy interface {
	// ExpectedVersion maps the aggregate version before the pending events
	// to the token handed to Append.
	ExpectedVersion(originalVersion int) int

	// Conflicts reports whether the stream's true last version rejects the token.
	Conflicts(lastVersion, expectedVersion int) bool
}

// PassThrough hands the original version over unchanged; the append is
// accepted only when the stream still ends exactly there.
type PassThrough struct{}

// ExpectedVersion returns originalVersion.
func (PassThrough) ExpectedVersion(originalVersion int) int { return originalVersion }

// Conflicts reports lastVersion != expectedVersion.
func (PassThrough) Conflicts(lastVersion, expectedVersion int) bool {
	return lastVersion != expectedVersion
}

// LastPlusOne expects the next free version; the append is rejected once
// the stream already reached it.
type LastPlusOne struct{}

// ExpectedVersion returns originalVersion+1.
func (LastPlusOne) ExpectedVersion(originalVersion int) int { return originalVersion + 1 }

// Conflicts reports lastVersion >= expectedVersion.
func (LastPlusOne) Conflicts(lastVersion, expectedVersion int) bool {
	return lastVersion >= expectedVersion
}

// Dispatcher delivers committed events downstream. It is invoked once per
// successful store with the whole batch, in order.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []event.DomainEvent) error
}
