// Package sagastore provides appcore.SagaStore adapters.
package sagastore

import (
	"context"
	"fmt"
	"sync"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// InMemorySagaStore keeps one meta per correlation id.
type InMemorySagaStore struct {
	mu    sync.RWMutex
	metas map[uuid.UUID]saga.TransactionMeta
}

// NewInMemorySagaStore creates an empty store.
func NewInMemorySagaStore() *InMemorySagaStore {
	return &InMemorySagaStore{metas: make(map[uuid.UUID]saga.TransactionMeta)}
}

// Get returns a copy of the meta, or nil when absent.
func (s *InMemorySagaStore) Get(_ context.Context, correlationID uuid.UUID) (*saga.TransactionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metas[correlationID]
	if !ok {
		return nil, nil //nolint:nilnil // absence is not an error for saga lookups
	}
	return &meta, nil
}

// Upsert stores a copy of meta.
func (s *InMemorySagaStore) Upsert(_ context.Context, meta *saga.TransactionMeta) error {
	if meta == nil || meta.CorrelationID.IsZero() {
		return fmt.Errorf("%w: saga meta requires a correlation id", errs.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.metas[meta.CorrelationID]; ok {
		existing.Step = meta.Step
		existing.State = meta.State
		existing.ErrorTrail = meta.ErrorTrail
		existing.ModifiedOn = meta.ModifiedOn
		s.metas[meta.CorrelationID] = existing
		return nil
	}
	s.metas[meta.CorrelationID] = *meta
	return nil
}
