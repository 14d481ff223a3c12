package sagastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/saga"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// SagaCollection is the collection holding saga metas.
const SagaCollection = "saga_transactions"

// MongoSagaStore implements appcore.SagaStore on MongoDB.
type MongoSagaStore struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// Option configures MongoSagaStore.
type Option func(*MongoSagaStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoSagaStore) {
		s.logger = logger
	}
}

// NewMongoSagaStore creates the store.
func NewMongoSagaStore(db *mongo.Database, opts ...Option) *MongoSagaStore {
	s := &MongoSagaStore{
		collection: db.Collection(SagaCollection),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the meta for correlationID, or nil when absent.
func (s *MongoSagaStore) Get(ctx context.Context, correlationID uuid.UUID) (*saga.TransactionMeta, error) {
	var meta saga.TransactionMeta
	err := s.collection.FindOne(ctx, bson.M{"correlation_id": correlationID}).Decode(&meta)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil //nolint:nilnil // absence is not an error for saga lookups
		}
		return nil, fmt.Errorf("failed to find saga %s: %w", correlationID, err)
	}
	return &meta, nil
}

// Upsert inserts the meta or updates its progress fields.
func (s *MongoSagaStore) Upsert(ctx context.Context, meta *saga.TransactionMeta) error {
	if meta == nil || meta.CorrelationID.IsZero() {
		return fmt.Errorf("%w: saga meta requires a correlation id", errs.ErrInvalidArgument)
	}

	filter := bson.M{"correlation_id": meta.CorrelationID}
	update := bson.M{
		"$set": bson.M{
			"step":        meta.Step,
			"state":       meta.State,
			"error_trail": meta.ErrorTrail,
			"modified_on": meta.ModifiedOn,
		},
		"$setOnInsert": bson.M{
			"_id":        meta.ID,
			"started_by": meta.StartedBy,
			"created_on": meta.CreatedOn,
		},
	}
	opts := options.UpdateOne().SetUpsert(true)

	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		s.logger.ErrorContext(ctx, "failed to upsert saga transaction",
			slog.String("correlation_id", meta.CorrelationID.String()),
			slog.String("step", meta.Step),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to upsert saga %s: %w", meta.CorrelationID, err)
	}
	return nil
}
