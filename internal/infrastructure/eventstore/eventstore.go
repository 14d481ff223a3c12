// Package eventstore provides appcore.EventStore adapters.
package eventstore

import (
	"fmt"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// noVersion is the last version of a stream without events.
const noVersion = -1

// validateBatch checks that records belong to stream and carry gapless
// versions continuing after lastVersion.
func validateBatch(stream string, records []event.Record, lastVersion int) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: empty batch for %s", errs.ErrInvalidArgument, stream)
	}
	for i, rec := range records {
		if rec.StreamName != stream {
			return fmt.Errorf("%w: record %d belongs to %q, not %q",
				errs.ErrInvalidArgument, i, rec.StreamName, stream)
		}
		if want := lastVersion + 1 + i; rec.Version != want {
			return fmt.Errorf("%w: record %d of %s has version %d, want %d",
				errs.ErrInvalidArgument, i, stream, rec.Version, want)
		}
	}
	return nil
}
