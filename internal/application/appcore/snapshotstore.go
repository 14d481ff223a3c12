package appcore

import (
	"context"

	"github.com/lllypuk/eventcore/internal/domain/snapshot"
)

// SnapshotStore persists snapshot streams.
type SnapshotStore interface {
	// SetSnapshot appends a snapshot. Returns a snapshot *errs.ConflictError
	// when the stream's last snapshot version is >= snap.SnapshotVersion.
	SetSnapshot(ctx context.Context, snap snapshot.Snapshot) error

	// LoadSnapshot returns the latest snapshot of the stream, or
	// errs.ErrSnapshotNotFound / errs.ErrSnapshotDeleted.
	LoadSnapshot(ctx context.Context, stream string) (snapshot.Snapshot, error)

	// Delete marks the snapshot stream deleted.
	Delete(ctx context.Context, stream string) error
}
