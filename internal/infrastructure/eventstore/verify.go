package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
)

// Violation describes one inconsistency found in a stream.
type Violation struct {
	Version int    `json:"version"`
	Problem string `json:"problem"`
}

// StreamReport is the outcome of VerifyStream.
type StreamReport struct {
	Stream          string      `json:"stream"`
	Events          int         `json:"events"`
	LastVersion     int         `json:"last_version"`
	SnapshotVersion *int        `json:"snapshot_version,omitempty"`
	Violations      []Violation `json:"violations,omitempty"`
}

// OK reports whether no violation was found.
func (r StreamReport) OK() bool {
	return len(r.Violations) == 0
}

// VerifyStream checks that stream holds versions 0..n-1 without gaps,
// that sequences grow strictly and that every record names the stream.
// When snapshots is non-nil the latest snapshot must not be ahead of the
// stream. Storage failures are returned as errors, inconsistencies are
// reported as violations.
func VerifyStream(
	ctx context.Context,
	store appcore.EventStore,
	snapshots appcore.SnapshotStore,
	stream string,
) (StreamReport, error) {
	report := StreamReport{Stream: stream, LastVersion: noVersion}

	records, err := store.Get(ctx, stream)
	if err != nil {
		return report, fmt.Errorf("failed to read stream %s: %w", stream, err)
	}
	report.Events = len(records)

	var lastSeq int64
	for i, rec := range records {
		if rec.Version != i {
			report.Violations = append(report.Violations, Violation{
				Version: rec.Version,
				Problem: fmt.Sprintf("expected version %d", i),
			})
		}
		if i > 0 && rec.Sequence <= lastSeq {
			report.Violations = append(report.Violations, Violation{
				Version: rec.Version,
				Problem: fmt.Sprintf("sequence %d does not follow %d", rec.Sequence, lastSeq),
			})
		}
		if rec.StreamName != stream {
			report.Violations = append(report.Violations, Violation{
				Version: rec.Version,
				Problem: fmt.Sprintf("record belongs to %q", rec.StreamName),
			})
		}
		lastSeq = rec.Sequence
		report.LastVersion = rec.Version
	}

	if snapshots == nil {
		return report, nil
	}

	snap, err := snapshots.LoadSnapshot(ctx, stream)
	switch {
	case errors.Is(err, errs.ErrSnapshotNotFound):
		return report, nil
	case err != nil:
		return report, fmt.Errorf("failed to load snapshot of %s: %w", stream, err)
	}

	report.SnapshotVersion = &snap.SnapshotVersion
	if snap.SnapshotVersion > report.LastVersion {
		report.Violations = append(report.Violations, Violation{
			Version: snap.SnapshotVersion,
			Problem: fmt.Sprintf("snapshot is ahead of last version %d", report.LastVersion),
		})
	}
	return report, nil
}
