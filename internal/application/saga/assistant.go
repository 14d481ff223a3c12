// Package saga coordinates multi-step transactions. Orchestration drives an
// explicit list of activities and compensates the succeeded ones in reverse
// when a step fails; Choreography runs a single transaction and hands
// failures to a compensation callback. Both persist progress through an
// appcore.SagaStore keyed by correlation id and never return step failures
// as errors: callers always get a sagadomain.Result.
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

// StepWindup names trail entries produced when the final state could not be
// persisted.
const StepWindup = "windup"

// Assistant holds the meta bookkeeping shared by both coordination styles.
type Assistant struct {
	store  appcore.SagaStore
	logger *slog.Logger
}

// NewAssistant creates an Assistant over store.
func NewAssistant(store appcore.SagaStore, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{store: store, logger: logger}
}

// GetSagaTransaction returns the meta for correlationID positioned at step.
// An absent meta is created New; an unfinished one is advanced to step and
// forced Active; a finished one is returned unchanged. Nothing is persisted.
func (a *Assistant) GetSagaTransaction(
	ctx context.Context,
	correlationID uuid.UUID,
	startedBy, step string,
) (*sagadomain.TransactionMeta, error) {
	meta, err := a.store.Get(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saga %s: %w", correlationID, err)
	}
	if meta == nil {
		return sagadomain.NewTransactionMeta(correlationID, startedBy, step), nil
	}
	if meta.State.IsFinished() {
		return meta, nil
	}
	if err = meta.Advance(step); err != nil {
		return nil, err
	}
	return meta, nil
}

// Begin fetches the meta for step and, when it may execute, persists it as
// Active. The returned flag is false for finished sagas, whose steps must not
// run again.
func (a *Assistant) Begin(
	ctx context.Context,
	correlationID uuid.UUID,
	startedBy, step string,
) (*sagadomain.TransactionMeta, bool, error) {
	meta, err := a.GetSagaTransaction(ctx, correlationID, startedBy, step)
	if err != nil {
		return nil, false, err
	}
	if !meta.CanExecute() {
		a.logger.InfoContext(ctx, "saga already finished, skipping step",
			slog.String("correlation_id", correlationID.String()),
			slog.String("step", step),
			slog.String("state", string(meta.State)),
		)
		return meta, false, nil
	}
	if err = meta.Activate(); err != nil {
		return nil, false, err
	}
	if err = a.store.Upsert(ctx, meta); err != nil {
		return nil, false, fmt.Errorf("failed to persist saga %s at step %s: %w", correlationID, step, err)
	}
	return meta, true, nil
}

// Windup moves the saga to Committed or Aborted and persists the error trail
// when it is not empty. A saga that is already finished is left as it is.
func (a *Assistant) Windup(
	ctx context.Context,
	correlationID uuid.UUID,
	success bool,
	trail []sagadomain.StepError,
) (*sagadomain.TransactionMeta, error) {
	meta, err := a.store.Get(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saga %s: %w", correlationID, err)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: no saga transaction for %s", errs.ErrInvalidArgument, correlationID)
	}
	if meta.State.IsFinished() {
		a.logger.WarnContext(ctx, "saga already finished, windup ignored",
			slog.String("correlation_id", correlationID.String()),
			slog.String("state", string(meta.State)),
		)
		return meta, nil
	}

	if err = meta.Finish(success, trail); err != nil {
		return nil, err
	}
	if err = a.store.Upsert(ctx, meta); err != nil {
		return nil, fmt.Errorf("failed to persist final state of saga %s: %w", correlationID, err)
	}
	return meta, nil
}

// windupResult finalizes the saga and records the outcome in result.
func (a *Assistant) windupResult(
	ctx context.Context,
	result *sagadomain.Result,
	success bool,
	trail []sagadomain.StepError,
) {
	meta, err := a.Windup(ctx, result.CorrelationID, success, trail)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to wind up saga",
			slog.String("correlation_id", result.CorrelationID.String()),
			slog.String("error", err.Error()),
		)
		result.Success = false
		result.State = sagadomain.StateActive
		result.Trail = append(result.Trail, sagadomain.TrailEntry{
			Step:   StepWindup,
			Errors: toStepErrors(StepWindup, err),
		})
		return
	}
	result.State = meta.State
	result.Success = meta.State == sagadomain.StateCommitted
}
