package aggregate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/domain/aggregate"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
	"github.com/lllypuk/eventcore/tests/fixtures"
)

func TestNewAggregate_StartsAtInitialVersion(t *testing.T) {
	acc := fixtures.NewAccount()

	assert.Equal(t, aggregate.InitialVersion, acc.Version())
	assert.Empty(t, acc.UncommittedEvents())
	assert.Equal(t, aggregate.StatusActive, acc.Status())
}

func TestRaise_IncrementsVersionAndQueues(t *testing.T) {
	// Arrange
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)

	// Act
	require.NoError(t, acc.Deposit(100))
	require.NoError(t, acc.Withdraw(30))

	// Assert
	assert.Equal(t, 2, acc.Version())
	assert.Equal(t, int64(70), acc.Balance())

	pending := acc.UncommittedEvents()
	require.Len(t, pending, 3)
	for i, evt := range pending {
		assert.Equal(t, i, evt.Version())
		assert.Equal(t, acc.GlobalID(), evt.StreamID())
		assert.False(t, evt.EventID().IsZero())
		assert.Equal(t, string(aggregate.StatusActive), evt.Status())
		assert.Equal(t, acc.CreatedOn(), evt.CreatedOn())
	}
}

func TestRaise_DomainErrorLeavesStateUntouched(t *testing.T) {
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)

	err = acc.Withdraw(10)

	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDomain)
	var de *errs.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, fixtures.CodeInsufficientFunds, de.Code)
	assert.Equal(t, 0, acc.Version())
	assert.Len(t, acc.UncommittedEvents(), 1)
}

func TestUncommittedEvents_ReturnsCopy(t *testing.T) {
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)

	pending := acc.UncommittedEvents()
	pending[0] = nil

	assert.NotNil(t, acc.UncommittedEvents()[0])
}

func TestMarkEventsAsCommitted(t *testing.T) {
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)

	acc.MarkEventsAsCommitted()

	assert.Empty(t, acc.UncommittedEvents())
	assert.Equal(t, 0, acc.Version())
}

func TestLoadFromHistory_DoesNotRequeue(t *testing.T) {
	// Arrange
	src, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, src.Deposit(50))
	require.NoError(t, src.Rename("bob"))
	history := src.UncommittedEvents()

	// Act
	dst := fixtures.NewAccount()
	require.NoError(t, aggregate.LoadFromHistory(dst, history))

	// Assert
	assert.Equal(t, src.Version(), dst.Version())
	assert.Equal(t, src.GlobalID(), dst.GlobalID())
	assert.Equal(t, "bob", dst.Owner())
	assert.Equal(t, int64(50), dst.Balance())
	assert.Empty(t, dst.UncommittedEvents())
}

func TestLoadFromHistory_RestoresStatus(t *testing.T) {
	src, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)
	require.NoError(t, src.Close())

	dst := fixtures.NewAccount()
	require.NoError(t, aggregate.LoadFromHistory(dst, src.UncommittedEvents()))

	assert.Equal(t, aggregate.StatusDeleted, dst.Status())
	assert.True(t, dst.IsClosed())
}

type strayEvent struct {
	event.BaseEvent
}

func (*strayEvent) EventType() string { return "stray" }

func TestApplyEvent_UnknownVariant(t *testing.T) {
	acc := fixtures.NewAccount()

	err := aggregate.ApplyEvent(acc, &strayEvent{}, true)

	require.ErrorIs(t, err, errs.ErrUnknownEvent)
	assert.Equal(t, aggregate.InitialVersion, acc.Version())
	assert.Empty(t, acc.UncommittedEvents())
}

func TestStreamName(t *testing.T) {
	id := uuid.MustParseUUID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")

	tests := []struct {
		name     string
		typeName string
		want     string
	}{
		{"upper first", "Account", "account-6ba7b8109dad11d180b400c04fd430c8"},
		{"already lower", "order", "order-6ba7b8109dad11d180b400c04fd430c8"},
		{"camel case", "ShoppingCart", "shoppingCart-6ba7b8109dad11d180b400c04fd430c8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aggregate.StreamName(tt.typeName, id))
		})
	}
}

func TestStreamNameOf(t *testing.T) {
	acc, err := fixtures.OpenAccount("alice")
	require.NoError(t, err)

	name := aggregate.StreamNameOf(acc)

	assert.Equal(t, "account-"+acc.GlobalID().Hex(), name)
	assert.Len(t, name, len("account-")+32)
}

func TestRestore(t *testing.T) {
	acc := fixtures.NewAccount()
	id := uuid.NewUUID()

	acc.Restore(id, aggregate.StatusActive, acc.CreatedOn(), acc.ModifiedOn(), 7)

	assert.Equal(t, 7, acc.Version())
	assert.Equal(t, id, acc.GlobalID())
}

// counter embeds Root the way application aggregates do.
type counter struct {
	aggregate.Root

	hits int
}

type counterHit struct {
	event.BaseEvent
}

func (*counterHit) EventType() string { return "counter.hit" }

func (*counter) TypeName() string { return "Counter" }

func (c *counter) When(evt event.DomainEvent) error {
	switch evt.(type) {
	case *counterHit:
		c.hits++
		return nil
	default:
		return errs.ErrUnknownEvent
	}
}

func TestEmbeddedRootSatisfiesAggregate(t *testing.T) {
	c := &counter{Root: aggregate.NewRoot(uuid.NewUUID())}
	var agg aggregate.Aggregate = c

	require.NoError(t, aggregate.Raise(agg, &counterHit{}))
	require.NoError(t, aggregate.Raise(agg, &counterHit{}))

	assert.Same(t, &c.Root, agg.AggregateRoot())
	assert.Equal(t, 2, c.hits)
	assert.Equal(t, 1, c.Version())
	assert.Len(t, c.UncommittedEvents(), 2)
	assert.Equal(t, "counter-"+c.GlobalID().Hex(), aggregate.StreamNameOf(agg))
}
