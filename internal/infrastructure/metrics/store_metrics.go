// Package metrics exposes Prometheus implementations of the store and saga
// metrics interfaces.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/eventcore/internal/application/eventsourcing"
)

// StoreMetrics contains Prometheus metrics for the aggregate event store.
type StoreMetrics struct {
	LoadLatency          *prometheus.HistogramVec
	StoreLatency         *prometheus.HistogramVec
	EventsAppendedTotal  *prometheus.CounterVec
	EventsReplayedTotal  *prometheus.CounterVec
	ConcurrencyConflicts *prometheus.CounterVec
	SnapshotsLoadedTotal *prometheus.CounterVec
	SnapshotsTakenTotal  *prometheus.CounterVec
}

// NewStoreMetrics creates and registers store metrics with the given registerer.
func NewStoreMetrics(registerer prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		LoadLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventcore_aggregate_load_duration_seconds",
				Help:    "Time to rebuild an aggregate from its stream",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"aggregate"},
		),
		StoreLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventcore_aggregate_store_duration_seconds",
				Help:    "Time to append uncommitted events, snapshot and dispatch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"aggregate"},
		),
		EventsAppendedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_events_appended_total",
				Help: "Total number of events appended to streams",
			},
			[]string{"aggregate"},
		),
		EventsReplayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_events_replayed_total",
				Help: "Total number of events applied while loading aggregates",
			},
			[]string{"aggregate"},
		),
		ConcurrencyConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_concurrency_conflicts_total",
				Help: "Total number of appends rejected by the expected version check",
			},
			[]string{"aggregate"},
		),
		SnapshotsLoadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_snapshots_loaded_total",
				Help: "Total number of loads that started from a snapshot",
			},
			[]string{"aggregate"},
		),
		SnapshotsTakenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_snapshots_taken_total",
				Help: "Total number of snapshots written",
			},
			[]string{"aggregate"},
		),
	}

	registerer.MustRegister(
		m.LoadLatency,
		m.StoreLatency,
		m.EventsAppendedTotal,
		m.EventsReplayedTotal,
		m.ConcurrencyConflicts,
		m.SnapshotsLoadedTotal,
		m.SnapshotsTakenTotal,
	)

	return m
}

// LoadDuration implements eventsourcing.Metrics.
func (m *StoreMetrics) LoadDuration(aggType string, d time.Duration) {
	m.LoadLatency.WithLabelValues(aggType).Observe(d.Seconds())
}

// StoreDuration implements eventsourcing.Metrics.
func (m *StoreMetrics) StoreDuration(aggType string, d time.Duration) {
	m.StoreLatency.WithLabelValues(aggType).Observe(d.Seconds())
}

// EventsAppended implements eventsourcing.Metrics.
func (m *StoreMetrics) EventsAppended(aggType string, count int) {
	m.EventsAppendedTotal.WithLabelValues(aggType).Add(float64(count))
}

// EventsReplayed implements eventsourcing.Metrics.
func (m *StoreMetrics) EventsReplayed(aggType string, count int) {
	m.EventsReplayedTotal.WithLabelValues(aggType).Add(float64(count))
}

// ConcurrencyConflict implements eventsourcing.Metrics.
func (m *StoreMetrics) ConcurrencyConflict(aggType string) {
	m.ConcurrencyConflicts.WithLabelValues(aggType).Inc()
}

// SnapshotLoaded implements eventsourcing.Metrics.
func (m *StoreMetrics) SnapshotLoaded(aggType string) {
	m.SnapshotsLoadedTotal.WithLabelValues(aggType).Inc()
}

// SnapshotTaken implements eventsourcing.Metrics.
func (m *StoreMetrics) SnapshotTaken(aggType string) {
	m.SnapshotsTakenTotal.WithLabelValues(aggType).Inc()
}

var _ eventsourcing.Metrics = (*StoreMetrics)(nil)
