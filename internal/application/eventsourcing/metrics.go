package eventsourcing

import "time"

// Metrics receives store measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	LoadDuration(aggType string, d time.Duration)
	StoreDuration(aggType string, d time.Duration)
	EventsAppended(aggType string, count int)
	EventsReplayed(aggType string, count int)
	ConcurrencyConflict(aggType string)
	SnapshotLoaded(aggType string)
	SnapshotTaken(aggType string)
}

type nopMetrics struct{}

func (nopMetrics) LoadDuration(string, time.Duration)  {}
func (nopMetrics) StoreDuration(string, time.Duration) {}
func (nopMetrics) EventsAppended(string, int)          {}
func (nopMetrics) EventsReplayed(string, int)          {}
func (nopMetrics) ConcurrencyConflict(string)          {}
func (nopMetrics) SnapshotLoaded(string)               {}
func (nopMetrics) SnapshotTaken(string)                {}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
