package appcore

import (
	"context"

	"github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// SagaStore persists saga progress keyed by correlation id.
type SagaStore interface {
	// Get returns the meta for correlationID, or nil without error when absent.
	Get(ctx context.Context, correlationID uuid.UUID) (*saga.TransactionMeta, error)

	// Upsert inserts the meta or updates step, state, error trail and modifiedOn.
	Upsert(ctx context.Context, meta *saga.TransactionMeta) error
}
