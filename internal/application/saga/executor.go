package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	sagadomain "github.com/lllypuk/eventcore/internal/domain/saga"
)

// CodePanic is the step error code of a recovered panic.
const CodePanic = "panic"

// Transaction is the body of one saga step.
type Transaction interface {
	Execute(ctx context.Context) error
}

// TransactionFunc adapts a function to Transaction.
type TransactionFunc func(ctx context.Context) error

// Execute calls f.
func (f TransactionFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Factory returns a fresh Transaction for every run.
type Factory func() Transaction

// StepExecutor runs a transaction and turns whatever it returns or panics
// with into step errors.
type StepExecutor struct {
	sagaName string
	retries  int
	backoff  time.Duration
	logger   *slog.Logger
	metrics  Metrics
}

// NewStepExecutor creates a StepExecutor. sagaName labels logs and metrics.
func NewStepExecutor(sagaName string, opts ...Option) (*StepExecutor, error) {
	o := newOptions(opts)
	if o.retries < 0 {
		return nil, fmt.Errorf("%w: step retries must not be negative, got %d", errs.ErrConfiguration, o.retries)
	}
	if o.retryBackoff < 0 {
		return nil, fmt.Errorf("%w: retry backoff must not be negative", errs.ErrConfiguration)
	}
	return &StepExecutor{
		sagaName: sagaName,
		retries:  o.retries,
		backoff:  o.retryBackoff,
		logger:   o.logger,
		metrics:  o.metrics,
	}, nil
}

// Execute runs tx as step and returns its errors, retrying system errors as
// configured. An empty result means the step succeeded. Execute never panics.
func (e *StepExecutor) Execute(ctx context.Context, step string, tx Transaction) []sagadomain.StepError {
	return e.run(ctx, step, tx, e.retries)
}

// ExecuteOnce runs tx exactly once regardless of the configured retries.
func (e *StepExecutor) ExecuteOnce(ctx context.Context, step string, tx Transaction) []sagadomain.StepError {
	return e.run(ctx, step, tx, 0)
}

func (e *StepExecutor) run(ctx context.Context, step string, tx Transaction, retries int) []sagadomain.StepError {
	if tx == nil {
		return []sagadomain.StepError{{
			Kind:    errs.KindSystem.String(),
			Message: "step has no transaction",
			Step:    step,
		}}
	}

	start := time.Now()
	var stepErrs []sagadomain.StepError
	for attempt := 0; ; attempt++ {
		stepErrs = e.attempt(ctx, step, tx)
		if len(stepErrs) == 0 || attempt >= retries || !retryable(stepErrs) || ctx.Err() != nil {
			break
		}

		e.logger.WarnContext(ctx, "retrying saga step",
			slog.String("saga", e.sagaName),
			slog.String("step", step),
			slog.Int("attempt", attempt+1),
			slog.String("error", stepErrs[0].Message),
		)
		e.metrics.StepRetried(e.sagaName, step)

		if !sleep(ctx, e.backoff) {
			break
		}
	}
	e.metrics.StepExecuted(e.sagaName, step, len(stepErrs) == 0, time.Since(start))
	return stepErrs
}

func (e *StepExecutor) attempt(ctx context.Context, step string, tx Transaction) (stepErrs []sagadomain.StepError) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "saga step panicked",
				slog.String("saga", e.sagaName),
				slog.String("step", step),
				slog.Any("panic", r),
			)
			stepErrs = []sagadomain.StepError{{
				Kind:    errs.KindSystem.String(),
				Code:    CodePanic,
				Message: fmt.Sprint(r),
				Step:    step,
			}}
		}
	}()

	if err := ctx.Err(); err != nil {
		return toStepErrors(step, err)
	}
	return toStepErrors(step, tx.Execute(ctx))
}

// retryable reports whether every error is a system error; a single domain
// error makes the step final.
func retryable(stepErrs []sagadomain.StepError) bool {
	for _, se := range stepErrs {
		if se.Kind != errs.KindSystem.String() {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// toStepErrors converts err into step errors. Joined errors produce one entry
// each. Domain errors keep their code; everything else is a system error.
func toStepErrors(step string, err error) []sagadomain.StepError {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []sagadomain.StepError
		for _, inner := range joined.Unwrap() {
			out = append(out, toStepErrors(step, inner)...)
		}
		return out
	}

	var domainErr *errs.DomainError
	if errors.As(err, &domainErr) {
		return []sagadomain.StepError{{
			Kind:    errs.KindDomain.String(),
			Code:    domainErr.Code,
			Message: domainErr.Message,
			Step:    step,
		}}
	}

	se := sagadomain.StepError{
		Kind:    errs.KindSystem.String(),
		Message: err.Error(),
		Step:    step,
	}
	if kind := errs.KindOf(err); kind != errs.KindSystem {
		se.Code = kind.String()
	}
	return []sagadomain.StepError{se}
}
