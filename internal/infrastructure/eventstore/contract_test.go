package eventstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/tests/testutil"
)

// runEventStoreContract checks the behavior every appcore.EventStore adapter
// shares, whatever its expected version policy.
func runEventStoreContract(t *testing.T, newStore func(t *testing.T) appcore.EventStore) {
	t.Run("append and read back", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		policy := store.VersionPolicy()

		stored, err := store.Append(ctx, "account-a", batch("account-a", 0, 3), policy.ExpectedVersion(-1))
		require.NoError(t, err)
		require.Len(t, stored, 3)

		records, err := store.Get(ctx, "account-a")
		require.NoError(t, err)
		require.Len(t, records, 3)
		testutil.AssertGaplessStream(t, records, "account-a")
		for i := range records {
			assert.Equal(t, stored[i].Sequence, records[i].Sequence)
			assert.Equal(t, stored[i].EventID, records[i].EventID)
		}
		assert.JSONEq(t, `{"amount":100}`, string(records[0].Payload))
		assert.Equal(t, "corr-456", records[0].Metadata.CorrelationID)

		last, err := store.GetLastEvent(ctx, "account-a")
		require.NoError(t, err)
		assert.Equal(t, 2, last.Version)

		one, err := store.GetByVersion(ctx, "account-a", 1)
		require.NoError(t, err)
		assert.Equal(t, records[1].EventID, one.EventID)
	})

	t.Run("unknown stream", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		records, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, records)

		_, err = store.GetLastEvent(ctx, "missing")
		require.ErrorIs(t, err, errs.ErrStreamNotFound)
		_, err = store.GetByVersion(ctx, "missing", 0)
		require.ErrorIs(t, err, errs.ErrStreamNotFound)
	})

	t.Run("stale writer is rejected and stream is unchanged", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		policy := store.VersionPolicy()
		_, err := store.Append(ctx, "account-b", batch("account-b", 0, 2), policy.ExpectedVersion(-1))
		require.NoError(t, err)

		// loaded at version 0, stream already at 1
		_, err = store.Append(ctx, "account-b", batch("account-b", 1, 1), policy.ExpectedVersion(0))

		require.ErrorIs(t, err, errs.ErrVersionConflict)
		records, err := store.Get(ctx, "account-b")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("concurrent writers, one wins", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		policy := store.VersionPolicy()
		_, err := store.Append(ctx, "account-c", batch("account-c", 0, 1), policy.ExpectedVersion(-1))
		require.NoError(t, err)

		const writers = 5
		var wg sync.WaitGroup
		results := make(chan error, writers)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errAppend := store.Append(ctx, "account-c", batch("account-c", 1, 1), policy.ExpectedVersion(0))
				results <- errAppend
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for errAppend := range results {
			if errAppend == nil {
				succeeded++
				continue
			}
			// transactions that lose the race may also abort on write conflicts
			assert.Error(t, errAppend)
		}
		assert.Equal(t, 1, succeeded)
		records, err := store.Get(ctx, "account-c")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("deleted stream rejects reads and writes", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		policy := store.VersionPolicy()
		_, err := store.Append(ctx, "account-d", batch("account-d", 0, 1), policy.ExpectedVersion(-1))
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "account-d"))

		_, err = store.Get(ctx, "account-d")
		require.ErrorIs(t, err, errs.ErrStreamDeleted)
		_, err = store.Append(ctx, "account-d", batch("account-d", 1, 1), policy.ExpectedVersion(0))
		require.ErrorIs(t, err, errs.ErrStreamDeleted)
	})

	t.Run("sequence grows across streams", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		policy := store.VersionPolicy()

		first, err := store.Append(ctx, "account-e", batch("account-e", 0, 1), policy.ExpectedVersion(-1))
		require.NoError(t, err)
		second, err := store.Append(ctx, "account-f", batch("account-f", 0, 1), policy.ExpectedVersion(-1))
		require.NoError(t, err)

		assert.Greater(t, second[0].Sequence, first[0].Sequence)
	})
}
