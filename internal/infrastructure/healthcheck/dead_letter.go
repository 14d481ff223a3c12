// Package healthcheck provides appcore.HealthChecker implementations for the
// storage and dispatch backends.
package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/lllypuk/eventcore/internal/application/appcore"
)

// QueueLengther reports the size of a dead letter queue.
// eventbus.DeadLetterHandler satisfies it.
type QueueLengther interface {
	QueueLength(ctx context.Context) (int64, error)
}

// DeadLetterChecker reports unhealthy once more than maxDeadLetters
// undeliverable events have piled up.
type DeadLetterChecker struct {
	queue          QueueLengther
	maxDeadLetters int64
}

// DeadLetterOption configures DeadLetterChecker.
type DeadLetterOption func(*DeadLetterChecker)

// WithMaxDeadLetters sets how many dead letters are tolerated. Default 0.
func WithMaxDeadLetters(n int64) DeadLetterOption {
	return func(c *DeadLetterChecker) {
		c.maxDeadLetters = n
	}
}

// NewDeadLetterChecker creates a new dead letter queue health checker.
func NewDeadLetterChecker(queue QueueLengther, opts ...DeadLetterOption) *DeadLetterChecker {
	c := &DeadLetterChecker{queue: queue}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of this health checker.
func (c *DeadLetterChecker) Name() string {
	return "dead_letter_queue"
}

// Check performs the health check.
func (c *DeadLetterChecker) Check(ctx context.Context) appcore.HealthStatus {
	count, err := c.queue.QueueLength(ctx)
	if err != nil {
		return appcore.HealthStatus{
			Healthy:   false,
			Message:   fmt.Sprintf("failed to get dead letter queue length: %v", err),
			CheckedAt: time.Now(),
		}
	}

	return appcore.HealthStatus{
		Healthy: count <= c.maxDeadLetters,
		Message: fmt.Sprintf("dead letter queue: %d events", count),
		Details: map[string]any{
			"dead_letters": count,
			"max":          c.maxDeadLetters,
		},
		CheckedAt: time.Now(),
	}
}
