package event

import (
	"time"

	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// BaseEvent carries the envelope fields shared by every event.
// Fields are unexported so that json.Marshal of a concrete event only
// produces its payload; the envelope travels in Record.
type BaseEvent struct {
	eventID    uuid.UUID
	streamID   uuid.UUID
	streamName string
	sequence   int64
	status     string
	createdOn  time.Time
	occurredOn time.Time
	version    int
	metadata   Metadata
}

// EventID returns the unique event identifier
func (e *BaseEvent) EventID() uuid.UUID { return e.eventID }

// StreamID returns the global identifier of the owning aggregate
func (e *BaseEvent) StreamID() uuid.UUID { return e.streamID }

// StreamName returns the stream name
func (e *BaseEvent) StreamName() string { return e.streamName }

// Sequence returns the backend-local sequence number
func (e *BaseEvent) Sequence() int64 { return e.sequence }

// Status returns the aggregate status copied at raise time
func (e *BaseEvent) Status() string { return e.status }

// CreatedOn returns the aggregate creation time
func (e *BaseEvent) CreatedOn() time.Time { return e.createdOn }

// OccurredOn returns the time when the event occurred
func (e *BaseEvent) OccurredOn() time.Time { return e.occurredOn }

// Version returns the aggregate version produced by this event
func (e *BaseEvent) Version() int { return e.version }

// Metadata returns the event metadata
func (e *BaseEvent) Metadata() Metadata { return e.metadata }

// Base returns the envelope itself.
func (e *BaseEvent) Base() *BaseEvent { return e }

// Stamp fills the fields set when an aggregate raises the event.
func (e *BaseEvent) Stamp(streamID uuid.UUID, status string, createdOn, occurredOn time.Time) {
	if e.eventID.IsZero() {
		e.eventID = uuid.NewUUID()
	}
	e.streamID = streamID
	e.status = status
	e.createdOn = createdOn
	e.occurredOn = occurredOn
}

// SetVersion sets the aggregate version produced by the event.
func (e *BaseEvent) SetVersion(v int) { e.version = v }

// SetStreamName tags the event with its stream name.
func (e *BaseEvent) SetStreamName(name string) { e.streamName = name }

// SetSequence records the sequence number assigned by the backend.
func (e *BaseEvent) SetSequence(seq int64) { e.sequence = seq }

// SetMetadata attaches metadata (correlation, causation, user).
func (e *BaseEvent) SetMetadata(m Metadata) { e.metadata = m }
