package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	sagadomain "github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

type compensation struct {
	name    string
	factory Factory
}

type activity struct {
	name         string
	factory      Factory
	compensation *compensation
}

// OrchestrationBuilder declares the activities of an Orchestration.
// Definition mistakes are collected and reported by Build.
type OrchestrationBuilder struct {
	name       string
	store      appcore.SagaStore
	opts       []Option
	activities []*activity
	seen       map[string]struct{}
	defErrs    []error
}

// NewOrchestration starts the definition of an orchestration named name.
func NewOrchestration(name string, store appcore.SagaStore, opts ...Option) *OrchestrationBuilder {
	return &OrchestrationBuilder{
		name:  name,
		store: store,
		opts:  opts,
		seen:  make(map[string]struct{}),
	}
}

// Activity appends a step. Names must be unique within the orchestration.
func (b *OrchestrationBuilder) Activity(name string, factory Factory) *OrchestrationBuilder {
	switch {
	case name == "":
		b.fail("activity name is required")
		return b
	case factory == nil:
		b.fail("activity %q has no factory", name)
		return b
	}
	if _, dup := b.seen[name]; dup {
		b.fail("duplicate activity %q", name)
		return b
	}
	b.seen[name] = struct{}{}
	b.activities = append(b.activities, &activity{name: name, factory: factory})
	return b
}

// WithCompensation attaches a compensation to the activity declared just
// before it.
func (b *OrchestrationBuilder) WithCompensation(name string, factory Factory) *OrchestrationBuilder {
	if len(b.activities) == 0 {
		b.fail("compensation %q has no activity to compensate", name)
		return b
	}
	anchor := b.activities[len(b.activities)-1]
	switch {
	case factory == nil:
		b.fail("compensation %q has no factory", name)
	case anchor.compensation != nil:
		b.fail("activity %q already has compensation %q", anchor.name, anchor.compensation.name)
	default:
		if name == "" {
			name = anchor.name
		}
		anchor.compensation = &compensation{name: name, factory: factory}
	}
	return b
}

func (b *OrchestrationBuilder) fail(format string, args ...any) {
	b.defErrs = append(b.defErrs, fmt.Errorf("%w: %s", errs.ErrSagaDefinition, fmt.Sprintf(format, args...)))
}

// Build validates the definition. Nothing is persisted before Build succeeds.
func (b *OrchestrationBuilder) Build() (*Orchestration, error) {
	if b.name == "" {
		b.fail("orchestration name is required")
	}
	if len(b.activities) == 0 {
		b.fail("orchestration %q has no activities", b.name)
	}
	if len(b.defErrs) > 0 {
		return nil, errors.Join(b.defErrs...)
	}
	if b.store == nil {
		return nil, fmt.Errorf("%w: saga store is required", errs.ErrConfiguration)
	}

	executor, err := NewStepExecutor(b.name, b.opts...)
	if err != nil {
		return nil, err
	}
	o := newOptions(b.opts)
	return &Orchestration{
		name:       b.name,
		activities: append([]*activity(nil), b.activities...),
		assistant:  NewAssistant(b.store, o.logger),
		executor:   executor,
		logger:     o.logger,
		metrics:    o.metrics,
	}, nil
}

// Orchestration runs a fixed pipeline of activities.
type Orchestration struct {
	name       string
	activities []*activity
	assistant  *Assistant
	executor   *StepExecutor
	logger     *slog.Logger
	metrics    Metrics
}

// Name returns the orchestration name.
func (o *Orchestration) Name() string { return o.name }

// Steps returns the activity names in declared order.
func (o *Orchestration) Steps() []string {
	names := make([]string, len(o.activities))
	for i, a := range o.activities {
		names[i] = a.name
	}
	return names
}

// Run executes the activities in order for correlationID. The first failure
// stops the pipeline and the compensations of the activities that succeeded
// run in reverse order. Run never returns an error: every failure ends up in
// the result trail.
func (o *Orchestration) Run(ctx context.Context, correlationID uuid.UUID) sagadomain.Result {
	result := sagadomain.Result{CorrelationID: correlationID, State: sagadomain.StateNew}
	var (
		succeeded []*activity
		trail     []sagadomain.StepError
		failed    bool
	)

	for _, act := range o.activities {
		meta, proceed, err := o.assistant.Begin(ctx, correlationID, o.name, act.name)
		if err != nil {
			stepErrs := toStepErrors(act.name, err)
			result.Trail = append(result.Trail, sagadomain.TrailEntry{Step: act.name, Errors: stepErrs})
			trail = append(trail, stepErrs...)
			failed = true
			break
		}
		if !proceed {
			result.State = meta.State
			result.Success = meta.State == sagadomain.StateCommitted
			return result
		}
		result.State = meta.State

		stepErrs := o.executor.Execute(ctx, act.name, act.factory())
		result.Trail = append(result.Trail, sagadomain.TrailEntry{
			Step:    act.name,
			Success: len(stepErrs) == 0,
			Errors:  stepErrs,
		})
		if len(stepErrs) > 0 {
			o.logger.WarnContext(ctx, "saga step failed",
				slog.String("saga", o.name),
				slog.String("correlation_id", correlationID.String()),
				slog.String("step", act.name),
				slog.Int("errors", len(stepErrs)),
			)
			trail = append(trail, stepErrs...)
			failed = true
			break
		}
		succeeded = append(succeeded, act)
	}

	if failed {
		compErrs := o.compensate(ctx, correlationID, succeeded, &result)
		trail = append(trail, compErrs...)
	}

	o.assistant.windupResult(ctx, &result, !failed, trail)
	o.metrics.Finished(o.name, result.State)
	return result
}

// compensate runs the compensations of succeeded in reverse order. A failing
// compensation does not stop the ones before it. Compensations are steps of
// the pipeline and get the same system error retries as activities.
func (o *Orchestration) compensate(
	ctx context.Context,
	correlationID uuid.UUID,
	succeeded []*activity,
	result *sagadomain.Result,
) []sagadomain.StepError {
	var all []sagadomain.StepError
	for i := len(succeeded) - 1; i >= 0; i-- {
		comp := succeeded[i].compensation
		if comp == nil {
			continue
		}
		compErrs := o.executor.Execute(ctx, comp.name, comp.factory())
		if len(compErrs) > 0 {
			o.logger.ErrorContext(ctx, "saga compensation failed",
				slog.String("saga", o.name),
				slog.String("correlation_id", correlationID.String()),
				slog.String("step", comp.name),
			)
		}
		o.metrics.CompensationExecuted(o.name, comp.name, len(compErrs) == 0)
		result.Compensated = append(result.Compensated, sagadomain.Compensation{Step: comp.name, Errors: compErrs})
		all = append(all, compErrs...)
	}
	return all
}
