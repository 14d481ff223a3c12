// Package snapshot defines the persisted point-in-time copy of an aggregate.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// Status values of a snapshot record.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Snapshot is one record of a snapshot stream, keyed by the event stream name. Snapshots are never mutated;
// the next one supersedes the previous.
type Snapshot struct {
	ID              string    `json:"id"               bson:"_id,omitempty"`
	StreamName      string    `json:"stream_name"      bson:"stream_name"`
	SnapshotVersion int       `json:"snapshot_version" bson:"snapshot_version"`
	State           []byte    `json:"state"            bson:"state"`
	CreatedOn       time.Time `json:"created_on"       bson:"created_on"`
	Status          string    `json:"status"           bson:"status"`
}

// State is the envelope stored in Snapshot.State. The aggregate version is
// carried here so replay can resume right after it.
type State struct {
	GlobalID   uuid.UUID       `json:"global_id"`
	Status     string          `json:"status"`
	CreatedOn  time.Time       `json:"created_on"`
	ModifiedOn time.Time       `json:"modified_on"`
	Version    int             `json:"version"`
	Body       json.RawMessage `json:"body"`
}

// Encode serializes the envelope.
func (s State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot state: %w", err)
	}
	return data, nil
}

// DecodeState parses an envelope produced by Encode.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("failed to decode snapshot state: %w", err)
	}
	return s, nil
}
