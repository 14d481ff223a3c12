// Package errs defines the error kinds shared by the event store and the saga coordinator.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for invalid setup (snapshot frequency, retry counts).
	ErrConfiguration = errors.New("invalid configuration")

	// ErrVersionConflict is returned when another writer already advanced the stream.
	ErrVersionConflict = errors.New("event version conflict")

	// ErrSnapshotVersionConflict is returned when another writer already advanced the snapshot stream.
	ErrSnapshotVersionConflict = errors.New("snapshot version conflict")

	// ErrStreamNotFound is returned when a stream has no persisted events.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamDeleted is returned when a stream was logically deleted.
	ErrStreamDeleted = errors.New("stream deleted")

	// ErrSnapshotNotFound is returned when no snapshot exists for a stream.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotDeleted is returned when the snapshot stream was deleted.
	ErrSnapshotDeleted = errors.New("snapshot deleted")

	// ErrAggregateVersion is returned when replay leaves the aggregate at an unexpected version.
	ErrAggregateVersion = errors.New("aggregate version mismatch")

	// ErrZeroEvents is returned when storing an aggregate without uncommitted events.
	ErrZeroEvents = errors.New("aggregate has no uncommitted events")

	// ErrInvalidArgument is returned for arguments rejected before any I/O.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownEvent is returned when an aggregate or registry meets an unregistered event type.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrInvalidTransition is returned when a state transition is invalid.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSagaDefinition is returned for saga pipelines that cannot be built.
	ErrSagaDefinition = errors.New("invalid saga definition")

	// ErrDomain matches every *DomainError.
	ErrDomain = errors.New("domain rule violation")
)

// Kind classifies an error for callers that need to branch on it.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindConfiguration
	KindVersionConflict
	KindSnapshotVersionConflict
	KindStreamNotFound
	KindStreamDeleted
	KindSnapshotNotFound
	KindSnapshotDeleted
	KindAggregateVersion
	KindZeroEvents
	KindInvalidArgument
	KindUnknownEvent
	KindInvalidTransition
	KindSagaDefinition
	KindDomain
	KindSystem
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindConfiguration:           "configuration",
	KindVersionConflict:         "version_conflict",
	KindSnapshotVersionConflict: "snapshot_version_conflict",
	KindStreamNotFound:          "stream_not_found",
	KindStreamDeleted:           "stream_deleted",
	KindSnapshotNotFound:        "snapshot_not_found",
	KindSnapshotDeleted:         "snapshot_deleted",
	KindAggregateVersion:        "aggregate_version",
	KindZeroEvents:              "zero_events",
	KindInvalidArgument:         "invalid_argument",
	KindUnknownEvent:            "unknown_event",
	KindInvalidTransition:       "invalid_transition",
	KindSagaDefinition:          "saga_definition",
	KindDomain:                  "domain",
	KindSystem:                  "system",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ordered from most to least specific; ErrDomain sits last so a wrapped
// conflict inside a domain error still reports the conflict.
var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindConfiguration, ErrConfiguration},
	{KindVersionConflict, ErrVersionConflict},
	{KindSnapshotVersionConflict, ErrSnapshotVersionConflict},
	{KindStreamNotFound, ErrStreamNotFound},
	{KindStreamDeleted, ErrStreamDeleted},
	{KindSnapshotNotFound, ErrSnapshotNotFound},
	{KindSnapshotDeleted, ErrSnapshotDeleted},
	{KindAggregateVersion, ErrAggregateVersion},
	{KindZeroEvents, ErrZeroEvents},
	{KindInvalidArgument, ErrInvalidArgument},
	{KindUnknownEvent, ErrUnknownEvent},
	{KindInvalidTransition, ErrInvalidTransition},
	{KindSagaDefinition, ErrSagaDefinition},
	{KindDomain, ErrDomain},
}

// KindOf returns the kind of err. Errors that match no known sentinel are
// reported as KindSystem; a nil error is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindSystem
}

// DomainError is a business rule violation raised from aggregate logic.
type DomainError struct {
	Code    string
	Message string
}

// NewDomainError creates a DomainError with an application-defined code.
func NewDomainError(code, message string) error {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain error %s: %s", e.Code, e.Message)
}

// Is makes every DomainError match ErrDomain.
func (e *DomainError) Is(target error) bool {
	return target == ErrDomain
}

// ConflictError carries the versions involved in a rejected append.
type ConflictError struct {
	Stream          string
	LastVersion     int
	ExpectedVersion int
	Snapshot        bool
}

// NewConflictError creates a ConflictError for an event stream.
func NewConflictError(stream string, lastVersion, expectedVersion int) error {
	return &ConflictError{Stream: stream, LastVersion: lastVersion, ExpectedVersion: expectedVersion}
}

// NewSnapshotConflictError creates a ConflictError for a snapshot stream.
func NewSnapshotConflictError(stream string, lastVersion, expectedVersion int) error {
	return &ConflictError{
		Stream:          stream,
		LastVersion:     lastVersion,
		ExpectedVersion: expectedVersion,
		Snapshot:        true,
	}
}

func (e *ConflictError) Error() string {
	what := "event"
	if e.Snapshot {
		what = "snapshot"
	}
	return fmt.Sprintf("%s version conflict on %s: last version %d, expected version %d",
		what, e.Stream, e.LastVersion, e.ExpectedVersion)
}

// Is matches ErrVersionConflict or ErrSnapshotVersionConflict depending on the stream.
func (e *ConflictError) Is(target error) bool {
	if e.Snapshot {
		return target == ErrSnapshotVersionConflict
	}
	return target == ErrVersionConflict
}
