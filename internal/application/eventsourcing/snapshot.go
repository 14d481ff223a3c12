package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/aggregate"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/snapshot"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// ShouldTakeSnapshot reports whether an aggregate at version is due for a
// snapshot.
func ShouldTakeSnapshot(version, frequency int) (bool, error) {
	if frequency < 1 {
		return false, fmt.Errorf("%w: snapshot frequency must be >= 1, got %d", errs.ErrConfiguration, frequency)
	}
	return (version+1)%frequency == 0, nil
}

func (s *Store[T]) maybeSnapshot(ctx context.Context, stream string, agg T, snapper aggregate.Snapshotter) {
	due, err := ShouldTakeSnapshot(agg.AggregateRoot().Version(), s.frequency)
	if err != nil || !due {
		return
	}

	// The events are already durable; a missing snapshot only costs replay time.
	if err = s.createSnapshot(ctx, stream, agg, snapper); err != nil {
		s.logger.WarnContext(ctx, "failed to create snapshot",
			slog.String("stream", stream),
			slog.Int("version", agg.AggregateRoot().Version()),
			slog.String("error", err.Error()))
		return
	}
	s.metrics.SnapshotTaken(s.typeName)
}

func (s *Store[T]) createSnapshot(ctx context.Context, stream string, agg T, snapper aggregate.Snapshotter) error {
	next := 0
	prev, err := s.snapshots.LoadSnapshot(ctx, stream)
	switch {
	case err == nil:
		next = prev.SnapshotVersion + 1
	case errors.Is(err, errs.ErrSnapshotNotFound):
	default:
		return err
	}

	body, err := snapper.SnapshotState()
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", stream, err)
	}

	root := agg.AggregateRoot()
	state, err := snapshot.State{
		GlobalID:   root.GlobalID(),
		Status:     string(root.Status()),
		CreatedOn:  root.CreatedOn(),
		ModifiedOn: root.ModifiedOn(),
		Version:    root.Version(),
		Body:       body,
	}.Encode()
	if err != nil {
		return err
	}

	return s.snapshots.SetSnapshot(ctx, snapshot.Snapshot{
		ID:              uuid.NewUUID().String(),
		StreamName:      stream,
		SnapshotVersion: next,
		State:           state,
		CreatedOn:       time.Now().UTC(),
		Status:          snapshot.StatusActive,
	})
}

// loadFromSnapshot restores agg from the latest snapshot and replays the
// events recorded after it, one version at a time. It reports false when no
// usable snapshot exists so the caller can fall back to full replay.
func (s *Store[T]) loadFromSnapshot(
	ctx context.Context,
	stream string,
	agg T,
	snapper aggregate.Snapshotter,
) (bool, error) {
	snap, err := s.snapshots.LoadSnapshot(ctx, stream)
	if errors.Is(err, errs.ErrSnapshotNotFound) || errors.Is(err, errs.ErrSnapshotDeleted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot of %s: %w", stream, err)
	}

	restored, err := copySnapshotTo(snap, agg.AggregateRoot(), snapper)
	if err != nil {
		return false, err
	}
	s.metrics.SnapshotLoaded(s.typeName)

	last, err := s.events.GetLastEvent(ctx, stream)
	if err != nil {
		return false, err
	}
	if last.Version < restored {
		return false, fmt.Errorf("%w: snapshot of %s is at %d, stream ends at %d",
			errs.ErrAggregateVersion, stream, restored, last.Version)
	}

	replayed := 0
	for v := restored + 1; v <= last.Version; v++ {
		rec, err := s.events.GetByVersion(ctx, stream, v)
		if err != nil {
			return false, err
		}
		evt, err := s.registry.Decode(rec)
		if err != nil {
			return false, fmt.Errorf("failed to decode %s v%d: %w", stream, v, err)
		}
		if err = aggregate.ApplyEvent(agg, evt, false); err != nil {
			return false, fmt.Errorf("failed to replay %s v%d: %w", stream, v, err)
		}
		if got := agg.AggregateRoot().Version(); got != v {
			return false, fmt.Errorf("%w: %s expected %d, got %d", errs.ErrAggregateVersion, stream, v, got)
		}
		replayed++
	}

	s.metrics.EventsReplayed(s.typeName, replayed)
	return true, nil
}

// copySnapshotTo restores the root bookkeeping and the aggregate body from
// snap and returns the restored aggregate version.
func copySnapshotTo(snap snapshot.Snapshot, root *aggregate.Root, snapper aggregate.Snapshotter) (int, error) {
	state, err := snapshot.DecodeState(snap.State)
	if err != nil {
		return 0, fmt.Errorf("snapshot %s v%d: %w", snap.StreamName, snap.SnapshotVersion, err)
	}
	if err = snapper.RestoreSnapshot(state.Body); err != nil {
		return 0, fmt.Errorf("failed to restore snapshot %s v%d: %w", snap.StreamName, snap.SnapshotVersion, err)
	}

	root.Restore(state.GlobalID, aggregate.Status(state.Status), state.CreatedOn, state.ModifiedOn, state.Version)
	return state.Version, nil
}
