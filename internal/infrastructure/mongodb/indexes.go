// Package mongodb provides MongoDB infrastructure components including index management.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names as constants for consistency.
const (
	CollectionEvents          = "events"
	CollectionSnapshots       = "snapshots"
	CollectionSagaTransaction = "saga_transactions"
)

// IndexDefinition describes a MongoDB index to be created.
type IndexDefinition struct {
	Name       string
	Collection string
	Keys       bson.D
	Unique     bool
}

func (d IndexDefinition) model() mongo.IndexModel {
	opts := options.Index().SetName(d.Name)
	if d.Unique {
		opts.SetUnique(true)
	}
	return mongo.IndexModel{Keys: d.Keys, Options: opts}
}

// CreateAllIndexes creates all necessary indexes for the stores.
// This function is idempotent - calling it multiple times is safe.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, GetAllIndexDefinitions())
}

func createIndexes(ctx context.Context, db *mongo.Database, indexes []IndexDefinition) error {
	for _, idx := range indexes {
		if _, err := db.Collection(idx.Collection).Indexes().CreateOne(ctx, idx.model()); err != nil {
			return fmt.Errorf("failed to create index %s on collection %s: %w", idx.Name, idx.Collection, err)
		}
	}
	return nil
}

// GetAllIndexDefinitions returns all index definitions for all collections.
func GetAllIndexDefinitions() []IndexDefinition {
	var indexes []IndexDefinition

	indexes = append(indexes, GetEventIndexes()...)
	indexes = append(indexes, GetSnapshotIndexes()...)
	indexes = append(indexes, GetSagaIndexes()...)

	return indexes
}

// GetEventIndexes returns index definitions for the events collection.
func GetEventIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// Last line of defense for optimistic concurrency: one event per stream version
			Name:       "idx_events_stream_version_unique",
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "stream_name", Value: 1}, {Key: "version", Value: 1}},
			Unique:     true,
		},
		{
			Name:       "idx_events_sequence_unique",
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "sequence", Value: 1}},
			Unique:     true,
		},
		{
			Name:       "idx_events_type_time",
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "event_type", Value: 1}, {Key: "occurred_on", Value: -1}},
		},
		{
			Name:       "idx_events_correlation",
			Collection: CollectionEvents,
			Keys:       bson.D{{Key: "metadata.correlation_id", Value: 1}},
		},
	}
}

// GetSnapshotIndexes returns index definitions for the snapshots collection.
func GetSnapshotIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Name:       "idx_snapshots_stream_version_unique",
			Collection: CollectionSnapshots,
			Keys:       bson.D{{Key: "stream_name", Value: 1}, {Key: "snapshot_version", Value: -1}},
			Unique:     true,
		},
	}
}

// GetSagaIndexes returns index definitions for the saga transactions collection.
func GetSagaIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Name:       "idx_saga_correlation_unique",
			Collection: CollectionSagaTransaction,
			Keys:       bson.D{{Key: "correlation_id", Value: 1}},
			Unique:     true,
		},
		{
			Name:       "idx_saga_state_modified",
			Collection: CollectionSagaTransaction,
			Keys:       bson.D{{Key: "state", Value: 1}, {Key: "modified_on", Value: -1}},
		},
	}
}

// EnsureIndexes is an alias for CreateAllIndexes for semantic clarity.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return CreateAllIndexes(ctx, db)
}

// CreateCollectionIndexes creates indexes for a specific collection only.
func CreateCollectionIndexes(ctx context.Context, db *mongo.Database, collectionName string) error {
	var indexes []IndexDefinition

	switch collectionName {
	case CollectionEvents:
		indexes = GetEventIndexes()
	case CollectionSnapshots:
		indexes = GetSnapshotIndexes()
	case CollectionSagaTransaction:
		indexes = GetSagaIndexes()
	default:
		return fmt.Errorf("unknown collection: %s", collectionName)
	}

	return createIndexes(ctx, db, indexes)
}
