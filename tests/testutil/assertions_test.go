package testutil

import (
	"testing"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

func TestAssertEventTypes(t *testing.T) {
	records := []event.Record{{EventType: "a"}, {EventType: "b"}}

	AssertEventTypes(t, records, "a", "b")
}

func TestAssertGaplessStream(t *testing.T) {
	records := []event.Record{
		{StreamName: "account-1", Version: 0, Sequence: 4},
		{StreamName: "account-1", Version: 1, Sequence: 9},
	}

	AssertGaplessStream(t, records, "account-1")
}

func TestAssertNotZeroUUID(t *testing.T) {
	AssertNotZeroUUID(t, uuid.NewUUID())
}

func TestAssertTimeApproximatelyEqual(t *testing.T) {
	now := time.Now()

	AssertTimeApproximatelyEqual(t, now, now.Add(-time.Millisecond), time.Second)
	AssertTimeApproximatelyEqual(t, now, now.Add(time.Millisecond), time.Second)
}
