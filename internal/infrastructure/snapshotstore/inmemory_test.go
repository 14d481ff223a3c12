package snapshotstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/snapshot"
	"github.com/lllypuk/eventcore/internal/infrastructure/snapshotstore"
)

func snap(stream string, version int) snapshot.Snapshot {
	return snapshot.Snapshot{
		ID:              stream + "-" + time.Now().String(),
		StreamName:      stream,
		SnapshotVersion: version,
		State:           []byte(`{"version":2}`),
		CreatedOn:       time.Now().UTC(),
		Status:          snapshot.StatusActive,
	}
}

func TestInMemorySnapshotStore_SetAndLoad(t *testing.T) {
	ctx := context.Background()
	store := snapshotstore.NewInMemorySnapshotStore()

	require.NoError(t, store.SetSnapshot(ctx, snap("s", 0)))
	require.NoError(t, store.SetSnapshot(ctx, snap("s", 1)))

	latest, err := store.LoadSnapshot(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.SnapshotVersion)
	assert.Equal(t, 2, store.Count("s"))
}

func TestInMemorySnapshotStore_NotFound(t *testing.T) {
	_, err := snapshotstore.NewInMemorySnapshotStore().LoadSnapshot(context.Background(), "s")

	require.ErrorIs(t, err, errs.ErrSnapshotNotFound)
}

func TestInMemorySnapshotStore_Conflict(t *testing.T) {
	ctx := context.Background()
	store := snapshotstore.NewInMemorySnapshotStore()
	require.NoError(t, store.SetSnapshot(ctx, snap("s", 0)))

	err := store.SetSnapshot(ctx, snap("s", 0))

	require.ErrorIs(t, err, errs.ErrSnapshotVersionConflict)
	assert.Equal(t, errs.KindSnapshotVersionConflict, errs.KindOf(err))
	assert.Equal(t, 1, store.Count("s"))
}

func TestInMemorySnapshotStore_Deleted(t *testing.T) {
	ctx := context.Background()
	store := snapshotstore.NewInMemorySnapshotStore()
	require.NoError(t, store.SetSnapshot(ctx, snap("s", 0)))

	require.NoError(t, store.Delete(ctx, "s"))

	_, err := store.LoadSnapshot(ctx, "s")
	require.ErrorIs(t, err, errs.ErrSnapshotDeleted)
}
