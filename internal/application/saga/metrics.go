package saga

import (
	"time"

	sagadomain "github.com/lllypuk/eventcore/internal/domain/saga"
)

// Metrics receives saga measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	StepExecuted(sagaName, step string, success bool, d time.Duration)
	StepRetried(sagaName, step string)
	CompensationExecuted(sagaName, step string, success bool)
	Finished(sagaName string, state sagadomain.State)
}

type nopMetrics struct{}

func (nopMetrics) StepExecuted(string, string, bool, time.Duration) {}
func (nopMetrics) StepRetried(string, string)                       {}
func (nopMetrics) CompensationExecuted(string, string, bool)        {}
func (nopMetrics) Finished(string, sagadomain.State)                {}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
