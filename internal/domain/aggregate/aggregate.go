// Package aggregate provides the event-sourced aggregate root.
//
// An aggregate embeds Root and implements When with one exhaustive type
// switch over its event variants. State changes go through Raise; replay
// goes through LoadFromHistory. Neither path touches storage.
package aggregate

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// Status is the lifecycle flag copied onto every raised event.
type Status string

// Aggregate statuses.
const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// InitialVersion is the version of an aggregate without committed events.
const InitialVersion = -1

// Aggregate is implemented by every event-sourced aggregate.
type Aggregate interface {
	// TypeName is the aggregate type used to build its stream name.
	TypeName() string

	// When mutates state for one event variant.
	When(evt event.DomainEvent) error

	// AggregateRoot exposes the embedded bookkeeping. Embedding Root
	// provides it.
	AggregateRoot() *Root
}

// Snapshotter is implemented by aggregates that opt into snapshotting.
// Implementations map their own state explicitly.
type Snapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreSnapshot(data []byte) error
}

// Root holds identity, version and uncommitted events.
type Root struct {
	id         string
	globalID   uuid.UUID
	status     Status
	createdOn  time.Time
	modifiedOn time.Time
	// applied is version+1, so the zero Root sits at InitialVersion.
	applied           int
	uncommittedEvents []event.DomainEvent
}

// NewRoot returns a root for a new aggregate with the given identity.
func NewRoot(globalID uuid.UUID) Root {
	return Root{
		globalID: globalID,
		status:   StatusActive,
	}
}

// AggregateRoot returns the root itself so that embedding satisfies Aggregate.
func (r *Root) AggregateRoot() *Root { return r }

// ID returns the backend-specific primary key.
func (r *Root) ID() string { return r.id }

// SetID sets the backend-specific primary key.
func (r *Root) SetID(id string) { r.id = id }

// GlobalID returns the stable identifier the stream name is derived from.
func (r *Root) GlobalID() uuid.UUID { return r.globalID }

// Version returns the version of the last applied event, -1 if none.
func (r *Root) Version() int { return r.applied - 1 }

// Status returns the lifecycle status.
func (r *Root) Status() Status {
	if r.status == "" {
		return StatusActive
	}
	return r.status
}

// SetStatus changes the status stamped onto subsequently raised events.
func (r *Root) SetStatus(s Status) { r.status = s }

// CreatedOn returns when the aggregate was created.
func (r *Root) CreatedOn() time.Time { return r.createdOn }

// ModifiedOn returns when the aggregate last changed.
func (r *Root) ModifiedOn() time.Time { return r.modifiedOn }

// UncommittedEvents returns a copy of events raised since the last store.
func (r *Root) UncommittedEvents() []event.DomainEvent {
	out := make([]event.DomainEvent, len(r.uncommittedEvents))
	copy(out, r.uncommittedEvents)
	return out
}

// MarkEventsAsCommitted clears uncommitted events. Only the store calls it,
// after a confirmed append.
func (r *Root) MarkEventsAsCommitted() {
	r.uncommittedEvents = nil
}

// Restore sets the bookkeeping fields from a snapshot.
func (r *Root) Restore(globalID uuid.UUID, status Status, createdOn, modifiedOn time.Time, version int) {
	r.globalID = globalID
	r.status = status
	r.createdOn = createdOn
	r.modifiedOn = modifiedOn
	r.applied = version + 1
}

// Raise stamps evt with the aggregate's identity and applies it as new.
func Raise(a Aggregate, evt event.DomainEvent) error {
	r := a.AggregateRoot()
	now := time.Now().UTC()
	if r.createdOn.IsZero() {
		r.createdOn = now
	}
	r.modifiedOn = now

	evt.Base().Stamp(r.globalID, string(r.Status()), r.createdOn, now)

	return ApplyEvent(a, evt, true)
}

// ApplyEvent runs the aggregate's mutation for evt. New events get the next
// version and are queued for persistence; replayed events only move the
// version forward and are never queued again.
func ApplyEvent(a Aggregate, evt event.DomainEvent, isNew bool) error {
	if err := a.When(evt); err != nil {
		return fmt.Errorf("apply %s: %w", evt.EventType(), err)
	}

	r := a.AggregateRoot()
	if isNew {
		r.applied++
		evt.Base().SetVersion(r.Version())
		r.uncommittedEvents = append(r.uncommittedEvents, evt)
		return nil
	}

	r.applied = evt.Version() + 1
	return nil
}

// LoadFromHistory replays persisted events in order.
func LoadFromHistory(a Aggregate, events []event.DomainEvent) error {
	r := a.AggregateRoot()
	for _, evt := range events {
		r.globalID = evt.StreamID()
		if evt.Status() != "" {
			r.status = Status(evt.Status())
		}
		r.createdOn = evt.CreatedOn()
		r.modifiedOn = evt.OccurredOn()

		if err := ApplyEvent(a, evt, false); err != nil {
			return err
		}
	}
	return nil
}

// StreamName builds the stream name shared by all adapters:
// lowerFirst(typeName) + "-" + 32 hex chars of the id.
func StreamName(typeName string, id uuid.UUID) string {
	return lowerFirst(typeName) + "-" + id.Hex()
}

// StreamNameOf returns the stream name of an aggregate instance.
func StreamNameOf(a Aggregate) string {
	return StreamName(a.TypeName(), a.AggregateRoot().GlobalID())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}
