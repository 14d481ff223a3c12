package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lllypuk/eventcore/internal/application/saga"
	sagadomain "github.com/lllypuk/eventcore/internal/domain/saga"
)

// SagaMetrics contains Prometheus metrics for saga runs.
type SagaMetrics struct {
	StepsTotal         *prometheus.CounterVec
	StepLatency        *prometheus.HistogramVec
	StepRetriesTotal   *prometheus.CounterVec
	CompensationsTotal *prometheus.CounterVec
	FinishedTotal      *prometheus.CounterVec
}

// NewSagaMetrics creates and registers saga metrics with the given registerer.
func NewSagaMetrics(registerer prometheus.Registerer) *SagaMetrics {
	m := &SagaMetrics{
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_saga_steps_total",
				Help: "Total number of executed saga steps",
			},
			[]string{"saga", "step", "success"},
		),
		StepLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventcore_saga_step_duration_seconds",
				Help:    "Time to execute a saga step, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"saga", "step"},
		),
		StepRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_saga_step_retries_total",
				Help: "Total number of step retries after system errors",
			},
			[]string{"saga", "step"},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_saga_compensations_total",
				Help: "Total number of compensations executed",
			},
			[]string{"saga", "step", "success"},
		),
		FinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventcore_saga_finished_total",
				Help: "Total number of saga runs by final state",
			},
			[]string{"saga", "state"},
		),
	}

	registerer.MustRegister(
		m.StepsTotal,
		m.StepLatency,
		m.StepRetriesTotal,
		m.CompensationsTotal,
		m.FinishedTotal,
	)

	return m
}

// StepExecuted implements saga.Metrics.
func (m *SagaMetrics) StepExecuted(sagaName, step string, success bool, d time.Duration) {
	m.StepsTotal.WithLabelValues(sagaName, step, strconv.FormatBool(success)).Inc()
	m.StepLatency.WithLabelValues(sagaName, step).Observe(d.Seconds())
}

// StepRetried implements saga.Metrics.
func (m *SagaMetrics) StepRetried(sagaName, step string) {
	m.StepRetriesTotal.WithLabelValues(sagaName, step).Inc()
}

// CompensationExecuted implements saga.Metrics.
func (m *SagaMetrics) CompensationExecuted(sagaName, step string, success bool) {
	m.CompensationsTotal.WithLabelValues(sagaName, step, strconv.FormatBool(success)).Inc()
}

// Finished implements saga.Metrics.
func (m *SagaMetrics) Finished(sagaName string, state sagadomain.State) {
	m.FinishedTotal.WithLabelValues(sagaName, string(state)).Inc()
}

var _ saga.Metrics = (*SagaMetrics)(nil)
