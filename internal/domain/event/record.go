package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// Record is the persisted shape of an event, the unit adapters append and read.
type Record struct {
	EventID    uuid.UUID       `json:"event_id"`
	StreamID   uuid.UUID       `json:"stream_id"`
	StreamName string          `json:"stream_name"`
	Sequence   int64           `json:"sequence"`
	EventType  string          `json:"event_type"`
	Status     string          `json:"status"`
	CreatedOn  time.Time       `json:"created_on"`
	OccurredOn time.Time       `json:"occurred_on"`
	Version    int             `json:"version"`
	Metadata   Metadata        `json:"metadata"`
	Payload    json.RawMessage `json:"payload"`
}

// ToRecord serializes an event into its persisted shape.
func ToRecord(e DomainEvent) (Record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal event %s: %w", e.EventType(), err)
	}

	return Record{
		EventID:    e.EventID(),
		StreamID:   e.StreamID(),
		StreamName: e.StreamName(),
		Sequence:   e.Sequence(),
		EventType:  e.EventType(),
		Status:     e.Status(),
		CreatedOn:  e.CreatedOn(),
		OccurredOn: e.OccurredOn(),
		Version:    e.Version(),
		Metadata:   e.Metadata(),
		Payload:    payload,
	}, nil
}

func (e *BaseEvent) restore(r Record) {
	e.eventID = r.EventID
	e.streamID = r.StreamID
	e.streamName = r.StreamName
	e.sequence = r.Sequence
	e.status = r.Status
	e.createdOn = r.CreatedOn
	e.occurredOn = r.OccurredOn
	e.version = r.Version
	e.metadata = r.Metadata
}
