// Package eventsourcing loads and stores event-sourced aggregates on top of
// an appcore.EventStore, with optional snapshots and dispatch.
package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/aggregate"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// Store is the aggregate event store for one aggregate type.
// It does not serialize writers; the adapter's version check is the only
// concurrency guard.
type Store[T aggregate.Aggregate] struct {
	events     appcore.EventStore
	registry   *event.Registry
	factory    func() T
	snapshots  appcore.SnapshotStore
	frequency  int
	dispatcher appcore.Dispatcher
	logger     *slog.Logger
	metrics    Metrics
	typeName   string
}

// NewStore creates a Store. factory must return a blank aggregate.
func NewStore[T aggregate.Aggregate](
	events appcore.EventStore,
	registry *event.Registry,
	factory func() T,
	opts ...Option,
) (*Store[T], error) {
	if events == nil {
		return nil, fmt.Errorf("%w: event store is required", errs.ErrConfiguration)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: event registry is required", errs.ErrConfiguration)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: aggregate factory is required", errs.ErrConfiguration)
	}

	o := options{
		frequency: DefaultSnapshotFrequency,
		logger:    slog.Default(),
		metrics:   NopMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.frequency < 1 {
		return nil, fmt.Errorf("%w: snapshot frequency must be >= 1, got %d", errs.ErrConfiguration, o.frequency)
	}

	return &Store[T]{
		events:     events,
		registry:   registry,
		factory:    factory,
		snapshots:  o.snapshots,
		frequency:  o.frequency,
		dispatcher: o.dispatcher,
		logger:     o.logger,
		metrics:    o.metrics,
		typeName:   factory().TypeName(),
	}, nil
}

// StreamName returns the stream of the aggregate with streamID.
func (s *Store[T]) StreamName(streamID uuid.UUID) string {
	return aggregate.StreamName(s.typeName, streamID)
}

// Get loads the current state of an aggregate, starting from the latest
// snapshot when one is available.
func (s *Store[T]) Get(ctx context.Context, streamID uuid.UUID) (T, error) {
	var zero T
	start := time.Now()
	defer func() { s.metrics.LoadDuration(s.typeName, time.Since(start)) }()

	stream := s.StreamName(streamID)
	agg := s.factory()

	if snapper, ok := s.snapshotter(agg); ok {
		restored, err := s.loadFromSnapshot(ctx, stream, agg, snapper)
		if err != nil {
			return zero, err
		}
		if restored {
			return agg, nil
		}
		agg = s.factory()
	}

	records, err := s.events.Get(ctx, stream)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, fmt.Errorf("%w: %s", errs.ErrStreamNotFound, stream)
	}

	history, err := s.registry.DecodeMany(records)
	if err != nil {
		return zero, fmt.Errorf("failed to decode stream %s: %w", stream, err)
	}
	if err = aggregate.LoadFromHistory(agg, history); err != nil {
		return zero, fmt.Errorf("failed to replay stream %s: %w", stream, err)
	}

	last := records[len(records)-1].Version
	if agg.AggregateRoot().Version() != last {
		return zero, fmt.Errorf("%w: stream %s replayed to %d, last event is %d",
			errs.ErrAggregateVersion, stream, agg.AggregateRoot().Version(), last)
	}

	s.metrics.EventsReplayed(s.typeName, len(history))
	return agg, nil
}

// GetByVersion applies exactly the event at version to a blank aggregate.
// The result reflects only that event, not the history before it.
func (s *Store[T]) GetByVersion(ctx context.Context, streamID uuid.UUID, version int) (T, error) {
	var zero T
	if version < 0 {
		return zero, fmt.Errorf("%w: version must be >= 0, got %d", errs.ErrInvalidArgument, version)
	}

	stream := s.StreamName(streamID)
	rec, err := s.events.GetByVersion(ctx, stream, version)
	if err != nil {
		return zero, err
	}

	evt, err := s.registry.Decode(rec)
	if err != nil {
		return zero, fmt.Errorf("failed to decode %s v%d: %w", stream, version, err)
	}

	agg := s.factory()
	if err = aggregate.LoadFromHistory(agg, []event.DomainEvent{evt}); err != nil {
		return zero, fmt.Errorf("failed to apply %s v%d: %w", stream, version, err)
	}
	return agg, nil
}

// Store appends the aggregate's uncommitted events. On success it may take a
// snapshot, dispatches the batch and clears the uncommitted list. Conflict
// errors are returned unchanged and leave the aggregate untouched.
func (s *Store[T]) Store(ctx context.Context, agg T) error {
	start := time.Now()
	defer func() { s.metrics.StoreDuration(s.typeName, time.Since(start)) }()

	root := agg.AggregateRoot()
	pending := root.UncommittedEvents()
	if len(pending) == 0 {
		return errs.ErrZeroEvents
	}

	stream := aggregate.StreamNameOf(agg)
	originalVersion := root.Version() - len(pending)
	expectedVersion := s.events.VersionPolicy().ExpectedVersion(originalVersion)

	records, err := s.toRecords(ctx, stream, pending)
	if err != nil {
		return err
	}

	stored, err := s.events.Append(ctx, stream, records, expectedVersion)
	if err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			s.metrics.ConcurrencyConflict(s.typeName)
			s.logger.WarnContext(ctx, "event version conflict",
				slog.String("stream", stream),
				slog.Int("expected_version", expectedVersion),
				slog.String("error", err.Error()))
		}
		return err
	}

	for i := range stored {
		if i < len(pending) {
			pending[i].Base().SetSequence(stored[i].Sequence)
		}
	}
	s.metrics.EventsAppended(s.typeName, len(pending))

	if snapper, ok := s.snapshotter(agg); ok {
		s.maybeSnapshot(ctx, stream, agg, snapper)
	}

	s.dispatch(ctx, stream, pending)
	root.MarkEventsAsCommitted()

	s.logger.DebugContext(ctx, "aggregate stored",
		slog.String("stream", stream),
		slog.Int("version", root.Version()),
		slog.Int("events", len(pending)))

	return nil
}

// Delete marks the aggregate's stream deleted, then dispatches and clears
// any events still pending on the instance.
func (s *Store[T]) Delete(ctx context.Context, agg T) error {
	stream := aggregate.StreamNameOf(agg)
	if err := s.deleteStream(ctx, stream); err != nil {
		return err
	}

	root := agg.AggregateRoot()
	if pending := root.UncommittedEvents(); len(pending) > 0 {
		for _, evt := range pending {
			evt.Base().SetStreamName(stream)
		}
		s.dispatch(ctx, stream, pending)
	}
	root.MarkEventsAsCommitted()
	return nil
}

// DeleteByID marks the stream of the aggregate with streamID deleted.
func (s *Store[T]) DeleteByID(ctx context.Context, streamID uuid.UUID) error {
	return s.deleteStream(ctx, s.StreamName(streamID))
}

func (s *Store[T]) deleteStream(ctx context.Context, stream string) error {
	if err := s.events.Delete(ctx, stream); err != nil {
		return fmt.Errorf("failed to delete stream %s: %w", stream, err)
	}
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, stream); err != nil {
			return fmt.Errorf("failed to delete snapshots of %s: %w", stream, err)
		}
	}

	s.logger.InfoContext(ctx, "stream deleted", slog.String("stream", stream))
	return nil
}

func (s *Store[T]) toRecords(ctx context.Context, stream string, pending []event.DomainEvent) ([]event.Record, error) {
	md, hasMD := appcore.MetadataFromContext(ctx)

	records := make([]event.Record, 0, len(pending))
	for _, evt := range pending {
		base := evt.Base()
		base.SetStreamName(stream)
		if hasMD && evt.Metadata() == (event.Metadata{}) {
			base.SetMetadata(md)
		}

		rec, err := event.ToRecord(evt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// dispatch runs after a durable append; a failure here cannot undo the
// append, so it is logged rather than returned.
func (s *Store[T]) dispatch(ctx context.Context, stream string, events []event.DomainEvent) {
	if s.dispatcher == nil || len(events) == 0 {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, events); err != nil {
		s.logger.ErrorContext(ctx, "failed to dispatch events",
			slog.String("stream", stream),
			slog.Int("events", len(events)),
			slog.String("error", err.Error()))
	}
}

func (s *Store[T]) snapshotter(agg T) (aggregate.Snapshotter, bool) {
	if s.snapshots == nil {
		return nil, false
	}
	snapper, ok := any(agg).(aggregate.Snapshotter)
	return snapper, ok
}
