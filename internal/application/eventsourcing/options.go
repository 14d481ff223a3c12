package eventsourcing

import (
	"log/slog"

	"github.com/lllypuk/eventcore/internal/application/appcore"
)

// DefaultSnapshotFrequency is used when snapshots are enabled without an
// explicit frequency.
const DefaultSnapshotFrequency = 10

type options struct {
	snapshots  appcore.SnapshotStore
	frequency  int
	dispatcher appcore.Dispatcher
	logger     *slog.Logger
	metrics    Metrics
}

// Option configures a Store.
type Option func(*options)

// WithSnapshotStore enables snapshotting for aggregates implementing
// aggregate.Snapshotter.
func WithSnapshotStore(s appcore.SnapshotStore) Option {
	return func(o *options) {
		o.snapshots = s
	}
}

// WithSnapshotFrequency takes a snapshot whenever (version+1) % n == 0.
// n < 1 makes NewStore fail.
func WithSnapshotFrequency(n int) Option {
	return func(o *options) {
		o.frequency = n
	}
}

// WithDispatcher sets the downstream receiver of committed events.
func WithDispatcher(d appcore.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
