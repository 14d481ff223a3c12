package healthcheck_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/lllypuk/eventcore/internal/infrastructure/healthcheck"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	n   int64
	err error
}

func (q fakeQueue) QueueLength(context.Context) (int64, error) {
	return q.n, q.err
}

func TestDeadLetterChecker(t *testing.T) {
	tests := []struct {
		name    string
		queue   fakeQueue
		opts    []healthcheck.DeadLetterOption
		healthy bool
	}{
		{"empty queue", fakeQueue{n: 0}, nil, true},
		{"any dead letter by default", fakeQueue{n: 1}, nil, false},
		{"below threshold", fakeQueue{n: 3}, []healthcheck.DeadLetterOption{healthcheck.WithMaxDeadLetters(5)}, true},
		{"queue error", fakeQueue{err: errors.New("boom")}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := healthcheck.NewDeadLetterChecker(tt.queue, tt.opts...)

			status := checker.Check(context.Background())

			assert.Equal(t, "dead_letter_queue", checker.Name())
			assert.Equal(t, tt.healthy, status.Healthy)
			assert.False(t, status.CheckedAt.IsZero())
		})
	}
}

func TestPingChecker(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		checker := healthcheck.NewPingChecker("db", func(context.Context) error { return nil })

		status := checker.Check(context.Background())

		assert.True(t, status.Healthy)
		assert.Empty(t, status.Message)
		assert.Contains(t, status.Details, "latency_ms")
	})

	t.Run("unhealthy", func(t *testing.T) {
		checker := healthcheck.NewPingChecker("db", func(context.Context) error { return errors.New("refused") })

		status := checker.Check(context.Background())

		assert.False(t, status.Healthy)
		assert.Equal(t, "refused", status.Message)
	})

	t.Run("deadline applied", func(t *testing.T) {
		checker := healthcheck.NewPingChecker("db", func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			if !ok {
				return errors.New("no deadline")
			}
			return nil
		})

		assert.True(t, checker.Check(context.Background()).Healthy)
	})
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := healthcheck.NewRedisChecker(client)
	require.Equal(t, "redis", checker.Name())
	assert.True(t, checker.Check(context.Background()).Healthy)

	mr.Close()
	assert.False(t, checker.Check(context.Background()).Healthy)
}
