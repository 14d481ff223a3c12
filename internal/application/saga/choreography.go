package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	sagadomain "github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// CompensationFunc undoes the effects of a failed choreography step.
type CompensationFunc func(ctx context.Context, correlationID uuid.UUID, stepErrs []sagadomain.StepError) error

// Choreography runs one local transaction per invocation. Sagas built this
// way are chained by the events their steps emit rather than by a step list:
// every step of the chain is its own Choreography sharing the saga store and
// the correlation id. A successful step leaves the saga Active; the step
// built WithFinalStep, or an explicit Complete, commits it. Any failing step
// aborts it.
type Choreography struct {
	name       string
	final      bool
	assistant  *Assistant
	executor   *StepExecutor
	compensate CompensationFunc
	logger     *slog.Logger
	metrics    Metrics
}

// NewChoreography creates a Choreography named name. compensate may be nil
// when the step has nothing to undo.
func NewChoreography(
	name string,
	store appcore.SagaStore,
	compensate CompensationFunc,
	opts ...Option,
) (*Choreography, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: choreography name is required", errs.ErrSagaDefinition)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: saga store is required", errs.ErrConfiguration)
	}
	executor, err := NewStepExecutor(name, opts...)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &Choreography{
		name:       name,
		final:      o.final,
		assistant:  NewAssistant(store, o.logger),
		executor:   executor,
		compensate: compensate,
		logger:     o.logger,
		metrics:    o.metrics,
	}, nil
}

// Name returns the choreography name, used as its step name.
func (c *Choreography) Name() string { return c.name }

// Execute runs tx for correlationID. A finished saga is reported without
// running anything. On failure the compensation callback runs exactly once,
// without retries, before the saga is marked Aborted.
func (c *Choreography) Execute(ctx context.Context, correlationID uuid.UUID, tx Transaction) sagadomain.Result {
	result := sagadomain.Result{CorrelationID: correlationID, State: sagadomain.StateNew}

	meta, proceed, err := c.assistant.Begin(ctx, correlationID, c.name, c.name)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to begin choreography step",
			slog.String("saga", c.name),
			slog.String("correlation_id", correlationID.String()),
			slog.String("error", err.Error()),
		)
		result.Trail = []sagadomain.TrailEntry{{Step: c.name, Errors: toStepErrors(c.name, err)}}
		return result
	}
	if !proceed {
		result.State = meta.State
		result.Success = meta.State == sagadomain.StateCommitted
		return result
	}
	result.State = meta.State

	stepErrs := c.executor.Execute(ctx, c.name, tx)
	result.Trail = []sagadomain.TrailEntry{{Step: c.name, Success: len(stepErrs) == 0, Errors: stepErrs}}

	if len(stepErrs) == 0 {
		result.Success = true
		if c.final {
			c.finish(ctx, &result, true, nil)
		}
		return result
	}

	trail := stepErrs
	if c.compensate != nil {
		compErrs := c.executor.ExecuteOnce(ctx, c.name, TransactionFunc(func(ctx context.Context) error {
			return c.compensate(ctx, correlationID, stepErrs)
		}))
		c.metrics.CompensationExecuted(c.name, c.name, len(compErrs) == 0)
		result.Compensated = []sagadomain.Compensation{{Step: c.name, Errors: compErrs}}
		trail = append(trail, compErrs...)
	}

	c.finish(ctx, &result, false, trail)
	return result
}

// Complete commits the saga of correlationID without running a step, for
// chains whose end is only known to the application. A finished saga is
// reported unchanged.
func (c *Choreography) Complete(ctx context.Context, correlationID uuid.UUID) sagadomain.Result {
	result := sagadomain.Result{CorrelationID: correlationID, State: sagadomain.StateActive}
	c.finish(ctx, &result, true, nil)
	return result
}

func (c *Choreography) finish(ctx context.Context, result *sagadomain.Result, success bool, trail []sagadomain.StepError) {
	c.assistant.windupResult(ctx, result, success, trail)
	c.metrics.Finished(c.name, result.State)
}
