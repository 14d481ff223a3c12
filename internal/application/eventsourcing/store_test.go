package eventsourcing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/application/eventsourcing"
	"github.com/lllypuk/eventcore/internal/domain/aggregate"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
	"github.com/lllypuk/eventcore/internal/infrastructure/eventbus"
	"github.com/lllypuk/eventcore/internal/infrastructure/eventstore"
	"github.com/lllypuk/eventcore/internal/infrastructure/snapshotstore"
	"github.com/lllypuk/eventcore/tests/fixtures"
	"github.com/lllypuk/eventcore/tests/mocks"
)

// recordingMetrics counts what the store reports.
type recordingMetrics struct {
	mu        sync.Mutex
	replayed  []int
	snapshots int
	loaded    int
	conflicts int
	appended  int
}

func (m *recordingMetrics) LoadDuration(string, time.Duration)  {}
func (m *recordingMetrics) StoreDuration(string, time.Duration) {}

func (m *recordingMetrics) EventsAppended(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended += n
}

func (m *recordingMetrics) EventsReplayed(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replayed = append(m.replayed, n)
}

func (m *recordingMetrics) ConcurrencyConflict(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *recordingMetrics) SnapshotLoaded(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded++
}

func (m *recordingMetrics) SnapshotTaken(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
}

func newAccountStore(t *testing.T, opts ...eventsourcing.Option) (*eventsourcing.Store[*fixtures.Account], *eventstore.InMemoryEventStore) {
	t.Helper()
	events := eventstore.NewInMemoryEventStore()
	store, err := eventsourcing.NewStore(events, fixtures.AccountEvents(), fixtures.NewAccount, opts...)
	require.NoError(t, err)
	return store, events
}

func TestNewStore_Configuration(t *testing.T) {
	events := eventstore.NewInMemoryEventStore()

	tests := []struct {
		name string
		run  func() error
	}{
		{"zero frequency", func() error {
			_, err := eventsourcing.NewStore(events, fixtures.AccountEvents(), fixtures.NewAccount,
				eventsourcing.WithSnapshotFrequency(0))
			return err
		}},
		{"negative frequency", func() error {
			_, err := eventsourcing.NewStore(events, fixtures.AccountEvents(), fixtures.NewAccount,
				eventsourcing.WithSnapshotFrequency(-3))
			return err
		}},
		{"missing event store", func() error {
			_, err := eventsourcing.NewStore[*fixtures.Account](nil, fixtures.AccountEvents(), fixtures.NewAccount)
			return err
		}},
		{"missing registry", func() error {
			_, err := eventsourcing.NewStore(events, nil, fixtures.NewAccount)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.ErrorIs(t, err, errs.ErrConfiguration)
			assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
		})
	}
}

func TestStore_VersionMonotonicity(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store, _ := newAccountStore(t)
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))

	// Act: N-1 further stores of one event each
	const n = 5
	for i := 1; i < n; i++ {
		require.NoError(t, acc.Deposit(int64(i)))
		require.NoError(t, store.Store(ctx, acc))
	}

	// Assert
	assert.Equal(t, n-1, acc.Version())
	assert.Empty(t, acc.UncommittedEvents())

	loaded, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, acc.Version(), loaded.Version())
	assert.Equal(t, acc.Balance(), loaded.Balance())
	assert.Equal(t, acc.Owner(), loaded.Owner())
	assert.Empty(t, loaded.UncommittedEvents())
}

func TestStore_AppendOnlyOrdering(t *testing.T) {
	ctx := context.Background()
	store, events := newAccountStore(t)
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, acc.Deposit(10))
	require.NoError(t, store.Store(ctx, acc))
	require.NoError(t, acc.Rename("bob"))
	require.NoError(t, acc.Withdraw(5))
	require.NoError(t, store.Store(ctx, acc))

	records, err := events.Get(ctx, store.StreamName(acc.GlobalID()))
	require.NoError(t, err)

	require.Len(t, records, 4)
	wantTypes := []string{
		fixtures.EventTypeOpened, fixtures.EventTypeDeposited,
		fixtures.EventTypeRenamed, fixtures.EventTypeWithdrawn,
	}
	for i, rec := range records {
		assert.Equal(t, i, rec.Version)
		assert.Equal(t, wantTypes[i], rec.EventType)
		assert.Equal(t, "account-"+acc.GlobalID().Hex(), rec.StreamName)
		if i > 0 {
			assert.Greater(t, rec.Sequence, records[i-1].Sequence)
		}
	}
}

func TestStore_SequenceCopiedBack(t *testing.T) {
	ctx := context.Background()
	store, _ := newAccountStore(t)
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, acc.Deposit(1))
	pending := acc.UncommittedEvents()

	require.NoError(t, store.Store(ctx, acc))

	assert.Equal(t, int64(1), pending[0].Sequence())
	assert.Equal(t, int64(2), pending[1].Sequence())
	assert.Equal(t, store.StreamName(acc.GlobalID()), pending[0].StreamName())
}

func TestStore_ZeroEvents(t *testing.T) {
	ctx := context.Background()
	store, _ := newAccountStore(t)
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))

	err = store.Store(ctx, acc)

	require.ErrorIs(t, err, errs.ErrZeroEvents)
}

func TestStore_OptimisticConcurrency(t *testing.T) {
	// Arrange: two copies loaded at the same version
	ctx := context.Background()
	metrics := &recordingMetrics{}
	store, events := newAccountStore(t, eventsourcing.WithMetrics(metrics))
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))

	first, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)
	second, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)

	require.NoError(t, first.Deposit(10))
	require.NoError(t, store.Store(ctx, first))

	// Act
	require.NoError(t, second.Deposit(20))
	err = store.Store(ctx, second)

	// Assert
	require.ErrorIs(t, err, errs.ErrVersionConflict)
	assert.Equal(t, errs.KindVersionConflict, errs.KindOf(err))
	var conflict *errs.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.LastVersion)
	assert.Equal(t, 1, conflict.ExpectedVersion)

	records, err := events.Get(ctx, store.StreamName(acc.GlobalID()))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, second.UncommittedEvents(), 1, "failed store keeps pending events")
	assert.Equal(t, 1, metrics.conflicts)

	loaded, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, int64(10), loaded.Balance())
}

func TestStore_PassThroughPolicy(t *testing.T) {
	ctx := context.Background()
	events := eventstore.NewInMemoryEventStore(eventstore.WithVersionPolicy(appcore.PassThrough{}))
	store, err := eventsourcing.NewStore(events, fixtures.AccountEvents(), fixtures.NewAccount)
	require.NoError(t, err)

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))
	stale, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)

	require.NoError(t, acc.Deposit(1))
	require.NoError(t, store.Store(ctx, acc))

	require.NoError(t, stale.Deposit(2))
	require.ErrorIs(t, store.Store(ctx, stale), errs.ErrVersionConflict)
}

func TestStore_GetMissingStream(t *testing.T) {
	store, _ := newAccountStore(t)

	_, err := store.Get(context.Background(), uuid.NewUUID())

	require.ErrorIs(t, err, errs.ErrStreamNotFound)
	assert.Equal(t, errs.KindStreamNotFound, errs.KindOf(err))
}

func TestStore_GetByVersion(t *testing.T) {
	ctx := context.Background()
	store, _ := newAccountStore(t)
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, acc.Deposit(10))
	require.NoError(t, acc.Deposit(20))
	require.NoError(t, store.Store(ctx, acc))

	t.Run("only that event's effects", func(t *testing.T) {
		got, err := store.GetByVersion(ctx, acc.GlobalID(), 2)

		require.NoError(t, err)
		assert.Equal(t, 2, got.Version())
		assert.Equal(t, int64(20), got.Balance())
		assert.Empty(t, got.Owner())
		assert.Equal(t, 1, got.Applied)
	})

	t.Run("negative version", func(t *testing.T) {
		_, err := store.GetByVersion(ctx, acc.GlobalID(), -1)

		require.ErrorIs(t, err, errs.ErrInvalidArgument)
	})

	t.Run("beyond the stream", func(t *testing.T) {
		_, err := store.GetByVersion(ctx, acc.GlobalID(), 3)

		require.ErrorIs(t, err, errs.ErrStreamNotFound)
	})
}

func TestStore_SnapshotScenario(t *testing.T) {
	// Created(v0), Renamed(v1), Renamed(v2) in three stores with frequency 3
	ctx := context.Background()
	snapshots := snapshotstore.NewInMemorySnapshotStore()
	metrics := &recordingMetrics{}
	store, _ := newAccountStore(t,
		eventsourcing.WithSnapshotStore(snapshots),
		eventsourcing.WithSnapshotFrequency(3),
		eventsourcing.WithMetrics(metrics),
	)

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))
	stream := store.StreamName(acc.GlobalID())
	assert.Equal(t, 0, snapshots.Count(stream))

	require.NoError(t, acc.Rename("bob"))
	require.NoError(t, store.Store(ctx, acc))
	assert.Equal(t, 0, snapshots.Count(stream))

	require.NoError(t, acc.Rename("carol"))
	require.NoError(t, store.Store(ctx, acc))

	// exactly one snapshot, at snapshotVersion 0
	require.Equal(t, 1, snapshots.Count(stream))
	snap, err := snapshots.LoadSnapshot(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.SnapshotVersion)

	// Get restores from the snapshot with zero tail replay
	loaded, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version())
	assert.Equal(t, "carol", loaded.Owner())
	assert.Equal(t, acc.GlobalID(), loaded.GlobalID())
	assert.Equal(t, 0, loaded.Applied)
	assert.Equal(t, 1, metrics.loaded)
	assert.Equal(t, []int{0}, metrics.replayed)
}

func TestStore_SnapshotTailReplay(t *testing.T) {
	ctx := context.Background()
	snapshots := snapshotstore.NewInMemorySnapshotStore()
	metrics := &recordingMetrics{}
	store, _ := newAccountStore(t,
		eventsourcing.WithSnapshotStore(snapshots),
		eventsourcing.WithSnapshotFrequency(2),
		eventsourcing.WithMetrics(metrics),
	)

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	for i := range 4 {
		require.NoError(t, acc.Deposit(int64(10*(i+1))))
		require.NoError(t, store.Store(ctx, acc))
	}
	// versions 0..4; snapshots after versions 1 and 3
	stream := store.StreamName(acc.GlobalID())
	require.Equal(t, 2, snapshots.Count(stream))

	loaded, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)

	assert.Equal(t, 4, loaded.Version())
	assert.Equal(t, acc.Balance(), loaded.Balance())
	assert.Equal(t, 1, loaded.Applied, "only the event after the snapshot is replayed")
	assert.Equal(t, []int{1}, metrics.replayed)
	assert.Equal(t, 2, metrics.snapshots)
}

func TestStore_SnapshotFallbackWhenMissing(t *testing.T) {
	ctx := context.Background()
	snapshots := snapshotstore.NewInMemorySnapshotStore()
	store, _ := newAccountStore(t,
		eventsourcing.WithSnapshotStore(snapshots),
		eventsourcing.WithSnapshotFrequency(100),
	)
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, acc.Deposit(5))
	require.NoError(t, store.Store(ctx, acc))

	loaded, err := store.Get(ctx, acc.GlobalID())

	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Applied)
	assert.Equal(t, int64(5), loaded.Balance())
}

func TestStore_AggregateWithoutSnapshotSupport(t *testing.T) {
	ctx := context.Background()
	events := eventstore.NewInMemoryEventStore()
	snapshots := snapshotstore.NewInMemorySnapshotStore()
	store, err := eventsourcing.NewStore(events, fixtures.LedgerEvents(), fixtures.NewLedger,
		eventsourcing.WithSnapshotStore(snapshots),
		eventsourcing.WithSnapshotFrequency(1),
	)
	require.NoError(t, err)

	ledger := fixtures.NewLedger()
	require.NoError(t, ledger.Add("first"))
	require.NoError(t, store.Store(ctx, ledger))

	assert.Equal(t, 0, snapshots.Count(store.StreamName(ledger.GlobalID())))
	loaded, err := store.Get(ctx, ledger.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, loaded.Entries)
}

func TestStore_DispatchAfterAppend(t *testing.T) {
	ctx := appcore.WithCorrelationID(context.Background(), "corr-1")
	bus := eventbus.NewInMemoryBus()
	var got []event.DomainEvent
	require.NoError(t, bus.Subscribe(fixtures.EventTypeOpened, func(_ context.Context, evt event.DomainEvent) error {
		got = append(got, evt)
		return nil
	}))
	require.NoError(t, bus.Subscribe(fixtures.EventTypeDeposited, func(_ context.Context, evt event.DomainEvent) error {
		got = append(got, evt)
		return nil
	}))
	store, _ := newAccountStore(t, eventsourcing.WithDispatcher(bus))

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, acc.Deposit(3))
	require.NoError(t, store.Store(ctx, acc))

	require.Len(t, got, 2)
	assert.Equal(t, fixtures.EventTypeOpened, got[0].EventType())
	assert.Equal(t, fixtures.EventTypeDeposited, got[1].EventType())
	assert.Equal(t, "corr-1", got[0].Metadata().CorrelationID)
}

func TestStore_NoDispatchOnFailedAppend(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewInMemoryBus()
	calls := 0
	require.NoError(t, bus.Subscribe(fixtures.EventTypeDeposited, func(context.Context, event.DomainEvent) error {
		calls++
		return nil
	}))
	store, _ := newAccountStore(t, eventsourcing.WithDispatcher(bus))

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))
	stale, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)
	require.NoError(t, acc.Deposit(1))
	require.NoError(t, store.Store(ctx, acc))
	require.Equal(t, 1, calls)

	require.NoError(t, stale.Deposit(2))
	require.Error(t, store.Store(ctx, stale))

	assert.Equal(t, 1, calls)
}

func TestStore_DispatchFailureDoesNotFailStore(t *testing.T) {
	ctx := context.Background()
	dispatcher := mocks.NewDispatcher()
	dispatcher.FailWith(errors.New("broker down"))
	store, _ := newAccountStore(t, eventsourcing.WithDispatcher(dispatcher))
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)

	require.NoError(t, store.Store(ctx, acc))

	assert.Empty(t, acc.UncommittedEvents())
	assert.Equal(t, 1, dispatcher.BatchCount())
}

func TestStore_BackendAppendFailure(t *testing.T) {
	ctx := context.Background()
	events := mocks.NewEventStore(eventstore.NewInMemoryEventStore())
	dispatcher := mocks.NewDispatcher()
	store, err := eventsourcing.NewStore(events, fixtures.AccountEvents(), fixtures.NewAccount,
		eventsourcing.WithDispatcher(dispatcher))
	require.NoError(t, err)

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	boom := errors.New("connection reset")
	events.FailNext("Append", boom)

	require.ErrorIs(t, store.Store(ctx, acc), boom)
	assert.Len(t, acc.UncommittedEvents(), 1)
	assert.Zero(t, dispatcher.BatchCount())

	// the pending events survive and can be stored on retry
	require.NoError(t, store.Store(ctx, acc))
	assert.Equal(t, 2, events.CallCount("Append"))
	assert.Len(t, dispatcher.PublishedEventsByType(fixtures.EventTypeOpened), 1)
}

func TestStore_BackendReadFailure(t *testing.T) {
	ctx := context.Background()
	events := mocks.NewEventStore(eventstore.NewInMemoryEventStore())
	store, err := eventsourcing.NewStore(events, fixtures.AccountEvents(), fixtures.NewAccount)
	require.NoError(t, err)

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))

	boom := errors.New("read timeout")
	events.FailNext("Get", boom)
	_, err = store.Get(ctx, acc.GlobalID())
	require.ErrorIs(t, err, boom)

	loaded, err := store.Get(ctx, acc.GlobalID())
	require.NoError(t, err)
	assert.Equal(t, acc.Version(), loaded.Version())
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewInMemoryBus()
	var closed []event.DomainEvent
	require.NoError(t, bus.Subscribe(fixtures.EventTypeClosed, func(_ context.Context, evt event.DomainEvent) error {
		closed = append(closed, evt)
		return nil
	}))
	snapshots := snapshotstore.NewInMemorySnapshotStore()
	store, _ := newAccountStore(t,
		eventsourcing.WithDispatcher(bus),
		eventsourcing.WithSnapshotStore(snapshots),
		eventsourcing.WithSnapshotFrequency(1),
	)

	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))

	// pending tombstone is dispatched, then cleared
	require.NoError(t, acc.Close())
	require.NoError(t, store.Delete(ctx, acc))

	assert.Len(t, closed, 1)
	assert.Empty(t, acc.UncommittedEvents())
	assert.Equal(t, aggregate.StatusDeleted, acc.Status())

	_, err = store.Get(ctx, acc.GlobalID())
	require.ErrorIs(t, err, errs.ErrStreamDeleted)
	assert.Equal(t, errs.KindStreamDeleted, errs.KindOf(err))

	require.NoError(t, aggregate.Raise(acc, &fixtures.Renamed{Owner: "x"}))
	require.ErrorIs(t, store.Store(ctx, acc), errs.ErrStreamDeleted)
}

func TestStore_DeleteByID(t *testing.T) {
	ctx := context.Background()
	store, _ := newAccountStore(t)
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, acc))

	require.NoError(t, store.DeleteByID(ctx, acc.GlobalID()))

	_, err = store.Get(ctx, acc.GlobalID())
	require.ErrorIs(t, err, errs.ErrStreamDeleted)
}

func TestShouldTakeSnapshot(t *testing.T) {
	tests := []struct {
		version   int
		frequency int
		want      bool
	}{
		{0, 1, true},
		{0, 3, false},
		{1, 3, false},
		{2, 3, true},
		{5, 3, true},
		{6, 3, false},
	}

	for _, tt := range tests {
		got, err := eventsourcing.ShouldTakeSnapshot(tt.version, tt.frequency)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "version %d frequency %d", tt.version, tt.frequency)
	}

	_, err := eventsourcing.ShouldTakeSnapshot(3, 0)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
