package eventstore

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// EventDocument represents an event in MongoDB
type EventDocument struct {
	ID bson.ObjectID `bson:"_id,omitempty"`

	EventID    string                `bson:"event_id"`
	StreamID   string                `bson:"stream_id"`
	StreamName string                `bson:"stream_name"`
	Sequence   int64                 `bson:"sequence"`
	EventType  string                `bson:"event_type"`
	Status     string                `bson:"status"`
	Version    int                   `bson:"version"`
	Data       bson.M                `bson:"data"`
	Metadata   EventMetadataDocument `bson:"metadata"`
	CreatedOn  time.Time             `bson:"created_on"`
	OccurredOn time.Time             `bson:"occurred_on"`
	RecordedAt time.Time             `bson:"recorded_at"`
}

// EventMetadataDocument represents event metadata in MongoDB
type EventMetadataDocument struct {
	Timestamp     time.Time `bson:"timestamp"`
	UserID        string    `bson:"user_id,omitempty"`
	CorrelationID string    `bson:"correlation_id,omitempty"`
	CausationID   string    `bson:"causation_id,omitempty"`
}

// EventSerializer converts records to MongoDB documents and back
type EventSerializer struct{}

// NewEventSerializer creates a new serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{}
}

// Serialize converts a record into a document. The JSON payload is stored
// as a sub-document so it stays queryable.
func (s *EventSerializer) Serialize(rec event.Record) (*EventDocument, error) {
	var data bson.M
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload of %s: %w", rec.EventType, err)
		}
	}

	return &EventDocument{
		EventID:    rec.EventID.String(),
		StreamID:   rec.StreamID.String(),
		StreamName: rec.StreamName,
		Sequence:   rec.Sequence,
		EventType:  rec.EventType,
		Status:     rec.Status,
		Version:    rec.Version,
		Data:       data,
		Metadata: EventMetadataDocument{
			Timestamp:     rec.Metadata.Timestamp,
			UserID:        rec.Metadata.UserID,
			CorrelationID: rec.Metadata.CorrelationID,
			CausationID:   rec.Metadata.CausationID,
		},
		CreatedOn:  rec.CreatedOn,
		OccurredOn: rec.OccurredOn,
		RecordedAt: time.Now().UTC(),
	}, nil
}

// SerializeMany serializes several records at once
func (s *EventSerializer) SerializeMany(records []event.Record) ([]*EventDocument, error) {
	documents := make([]*EventDocument, 0, len(records))
	for i, rec := range records {
		doc, err := s.Serialize(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event at index %d: %w", i, err)
		}
		documents = append(documents, doc)
	}
	return documents, nil
}

// Deserialize converts a document back into a record
func (s *EventSerializer) Deserialize(doc *EventDocument) (event.Record, error) {
	payload := []byte("{}")
	if doc.Data != nil {
		var err error
		payload, err = json.Marshal(doc.Data)
		if err != nil {
			return event.Record{}, fmt.Errorf("failed to marshal payload of %s: %w", doc.EventType, err)
		}
	}

	return event.Record{
		EventID:    uuid.UUID(doc.EventID),
		StreamID:   uuid.UUID(doc.StreamID),
		StreamName: doc.StreamName,
		Sequence:   doc.Sequence,
		EventType:  doc.EventType,
		Status:     doc.Status,
		CreatedOn:  doc.CreatedOn,
		OccurredOn: doc.OccurredOn,
		Version:    doc.Version,
		Metadata: event.Metadata{
			UserID:        doc.Metadata.UserID,
			CorrelationID: doc.Metadata.CorrelationID,
			CausationID:   doc.Metadata.CausationID,
			Timestamp:     doc.Metadata.Timestamp,
		},
		Payload: payload,
	}, nil
}

// DeserializeMany deserializes several documents at once
func (s *EventSerializer) DeserializeMany(docs []*EventDocument) ([]event.Record, error) {
	records := make([]event.Record, 0, len(docs))
	for i, doc := range docs {
		rec, err := s.Deserialize(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize event at index %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
