package event

import (
	"context"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// DomainEvent represents a domain event.
// Concrete events embed BaseEvent and declare their own EventType.
type DomainEvent interface {
	// EventType returns the type tag used for registry lookups and persistence
	EventType() string

	// EventID returns the unique event identifier
	EventID() uuid.UUID

	// StreamID returns the global identifier of the owning aggregate
	StreamID() uuid.UUID

	// StreamName returns the name of the stream the event belongs to
	StreamName() string

	// Sequence returns the backend-local sequence number
	Sequence() int64

	// Status returns the aggregate status at the time the event was raised
	Status() string

	// CreatedOn returns the creation time of the owning aggregate
	CreatedOn() time.Time

	// OccurredOn returns the time when the event occurred
	OccurredOn() time.Time

	// Version returns the aggregate version this event produced
	Version() int

	// Metadata returns the event metadata
	Metadata() Metadata

	// Base gives the store access to the envelope fields
	Base() *BaseEvent
}

// Bus is an interface for publishing events
type Bus interface {
	// Publish publishes an event
	Publish(ctx context.Context, event DomainEvent) error
}
