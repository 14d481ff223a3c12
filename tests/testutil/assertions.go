package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// AssertEventPublished checks that event of specific type was published
func AssertEventPublished(t *testing.T, events []event.DomainEvent, eventType string) event.DomainEvent {
	t.Helper()

	for _, evt := range events {
		if evt.EventType() == eventType {
			return evt
		}
	}

	t.Fatalf("Expected event of type %q, but it was not found. Got %d events", eventType, len(events))
	return nil
}

// AssertEventTypes checks the event types of a stream in order
func AssertEventTypes(t *testing.T, records []event.Record, expected ...string) {
	t.Helper()

	got := make([]string, len(records))
	for i, rec := range records {
		got[i] = rec.EventType
	}
	require.Equal(t, expected, got)
}

// AssertGaplessStream checks that records belong to stream and carry versions
// 0..n-1 with strictly increasing sequence numbers
func AssertGaplessStream(t *testing.T, records []event.Record, stream string) {
	t.Helper()

	var lastSeq int64
	for i, rec := range records {
		require.Equal(t, stream, rec.StreamName, "record %d", i)
		require.Equal(t, i, rec.Version, "record %d", i)
		if i > 0 {
			require.Greater(t, rec.Sequence, lastSeq, "record %d", i)
		}
		lastSeq = rec.Sequence
	}
}

// AssertNotZeroUUID checks that UUID is not zero
func AssertNotZeroUUID(t *testing.T, id uuid.UUID, msgAndArgs ...any) {
	t.Helper()

	assert.False(t, id.IsZero(), msgAndArgs...)
}

// AssertTimeApproximatelyEqual checks that times differ by no more than delta.
// Stores truncate time precision, so exact comparison is not reliable.
func AssertTimeApproximatelyEqual(t *testing.T, expected, actual time.Time, delta time.Duration, msgAndArgs ...any) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, delta, msgAndArgs...)
}
