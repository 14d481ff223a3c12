package saga_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/application/saga"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/tests/fixtures"
)

func TestNewStepExecutor_RejectsNegativeRetries(t *testing.T) {
	_, err := saga.NewStepExecutor("transfer", saga.WithStepRetries(-1))

	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestStepExecutor_Execute(t *testing.T) {
	tests := []struct {
		name     string
		run      func(context.Context) error
		wantKind string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "domain error keeps its code",
			run:      func(context.Context) error { return errs.NewDomainError(fixtures.CodeInsufficientFunds, "balance 3") },
			wantKind: "domain",
			wantCode: fixtures.CodeInsufficientFunds,
			wantMsg:  "balance 3",
		},
		{
			name: "wrapped domain error keeps its code",
			run: func(context.Context) error {
				return fmt.Errorf("withdraw: %w", errs.NewDomainError(fixtures.CodeAccountClosed, "closed"))
			},
			wantKind: "domain",
			wantCode: fixtures.CodeAccountClosed,
			wantMsg:  "closed",
		},
		{
			name:     "plain error is a system error",
			run:      func(context.Context) error { return errors.New("disk full") },
			wantKind: "system",
			wantMsg:  "disk full",
		},
		{
			name:     "conflict is a system error tagged with its kind",
			run:      func(context.Context) error { return errs.NewConflictError("account-1", 2, 2) },
			wantKind: "system",
			wantCode: "version_conflict",
		},
		{
			name:     "panic is captured",
			run:      func(context.Context) error { panic("nil map write") },
			wantKind: "system",
			wantCode: saga.CodePanic,
			wantMsg:  "nil map write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			executor, err := saga.NewStepExecutor("transfer")
			require.NoError(t, err)

			// Act
			stepErrs := executor.Execute(context.Background(), "withdraw", saga.TransactionFunc(tt.run))

			// Assert
			require.Len(t, stepErrs, 1)
			assert.Equal(t, tt.wantKind, stepErrs[0].Kind)
			assert.Equal(t, tt.wantCode, stepErrs[0].Code)
			assert.Equal(t, "withdraw", stepErrs[0].Step)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, stepErrs[0].Message)
			}
		})
	}
}

func TestStepExecutor_Success(t *testing.T) {
	executor, err := saga.NewStepExecutor("transfer")
	require.NoError(t, err)

	stepErrs := executor.Execute(context.Background(), "deposit", saga.TransactionFunc(func(context.Context) error {
		return nil
	}))

	assert.Empty(t, stepErrs)
}

func TestStepExecutor_JoinedErrors(t *testing.T) {
	executor, err := saga.NewStepExecutor("transfer")
	require.NoError(t, err)

	stepErrs := executor.Execute(context.Background(), "notify", saga.TransactionFunc(func(context.Context) error {
		return errors.Join(errors.New("smtp down"), errs.NewDomainError("bad_address", "no mx"))
	}))

	require.Len(t, stepErrs, 2)
	assert.Equal(t, "system", stepErrs[0].Kind)
	assert.Equal(t, "domain", stepErrs[1].Kind)
}

func TestStepExecutor_RetriesSystemErrors(t *testing.T) {
	metrics := &recordingMetrics{}
	executor, err := saga.NewStepExecutor("transfer",
		saga.WithStepRetries(2),
		saga.WithRetryBackoff(time.Millisecond),
		saga.WithMetrics(metrics),
	)
	require.NoError(t, err)

	calls := 0
	stepErrs := executor.Execute(context.Background(), "deposit", saga.TransactionFunc(func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	}))

	assert.Empty(t, stepErrs)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, metrics.retried)
}

func TestStepExecutor_ExecuteOnceIgnoresRetries(t *testing.T) {
	metrics := &recordingMetrics{}
	executor, err := saga.NewStepExecutor("transfer",
		saga.WithStepRetries(2),
		saga.WithRetryBackoff(time.Millisecond),
		saga.WithMetrics(metrics),
	)
	require.NoError(t, err)

	calls := 0
	stepErrs := executor.ExecuteOnce(context.Background(), "refund", saga.TransactionFunc(func(context.Context) error {
		calls++
		return errors.New("timeout")
	}))

	require.Len(t, stepErrs, 1)
	assert.Equal(t, 1, calls)
	assert.Zero(t, metrics.retried)
	assert.Equal(t, 1, metrics.executed)
}

func TestStepExecutor_NeverRetriesDomainErrors(t *testing.T) {
	executor, err := saga.NewStepExecutor("transfer", saga.WithStepRetries(5), saga.WithRetryBackoff(0))
	require.NoError(t, err)

	calls := 0
	stepErrs := executor.Execute(context.Background(), "withdraw", saga.TransactionFunc(func(context.Context) error {
		calls++
		return errs.NewDomainError(fixtures.CodeInsufficientFunds, "no")
	}))

	require.Len(t, stepErrs, 1)
	assert.Equal(t, 1, calls)
}

func TestStepExecutor_CancelledContext(t *testing.T) {
	executor, err := saga.NewStepExecutor("transfer", saga.WithStepRetries(3))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	stepErrs := executor.Execute(ctx, "deposit", saga.TransactionFunc(func(context.Context) error {
		calls++
		return nil
	}))

	require.Len(t, stepErrs, 1)
	assert.Equal(t, "system", stepErrs[0].Kind)
	assert.Zero(t, calls)
}

func TestStepExecutor_NilTransaction(t *testing.T) {
	executor, err := saga.NewStepExecutor("transfer")
	require.NoError(t, err)

	stepErrs := executor.Execute(context.Background(), "deposit", nil)

	require.Len(t, stepErrs, 1)
	assert.Equal(t, "system", stepErrs[0].Kind)
}
