package saga_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lllypuk/eventcore/internal/application/saga"
	sagadomain "github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// journal records the order in which steps and compensations ran.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// step returns a factory whose transaction records name and returns err.
func (j *journal) step(name string, err error) saga.Factory {
	return func() saga.Transaction {
		return saga.TransactionFunc(func(context.Context) error {
			j.add(name)
			return err
		})
	}
}

type recordingMetrics struct {
	mu        sync.Mutex
	executed  int
	retried   int
	compensed int
	finished  []sagadomain.State
}

func (m *recordingMetrics) StepExecuted(string, string, bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed++
}

func (m *recordingMetrics) StepRetried(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried++
}

func (m *recordingMetrics) CompensationExecuted(string, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensed++
}

func (m *recordingMetrics) Finished(_ string, state sagadomain.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, state)
}

// failingStore wraps a store and fails the configured operations.
type failingStore struct {
	inner     sagaStore
	getErr    error
	upsertErr error
}

type sagaStore interface {
	Get(ctx context.Context, correlationID uuid.UUID) (*sagadomain.TransactionMeta, error)
	Upsert(ctx context.Context, meta *sagadomain.TransactionMeta) error
}

func (s *failingStore) Get(ctx context.Context, id uuid.UUID) (*sagadomain.TransactionMeta, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.inner.Get(ctx, id)
}

func (s *failingStore) Upsert(ctx context.Context, meta *sagadomain.TransactionMeta) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.inner.Upsert(ctx, meta)
}

var errStorage = errors.New("connection reset by peer")
