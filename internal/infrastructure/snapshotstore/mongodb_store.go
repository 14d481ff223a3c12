package snapshotstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/snapshot"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// Collection names used by MongoSnapshotStore.
const (
	SnapshotsCollection       = "snapshots"
	SnapshotStreamsCollection = "snapshot_streams"
)

type snapshotStreamDocument struct {
	Name      string    `bson:"_id"`
	Deleted   bool      `bson:"deleted"`
	DeletedAt time.Time `bson:"deleted_at,omitempty"`
}

// MongoSnapshotStore implements appcore.SnapshotStore on MongoDB. A unique
// (stream_name, snapshot_version) index backs the version check.
type MongoSnapshotStore struct {
	collection *mongo.Collection
	streams    *mongo.Collection
	logger     *slog.Logger
}

// Option configures MongoSnapshotStore.
type Option func(*MongoSnapshotStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoSnapshotStore) {
		s.logger = logger
	}
}

// NewMongoSnapshotStore creates the store.
func NewMongoSnapshotStore(db *mongo.Database, opts ...Option) *MongoSnapshotStore {
	s := &MongoSnapshotStore{
		collection: db.Collection(SnapshotsCollection),
		streams:    db.Collection(SnapshotStreamsCollection),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSnapshot inserts snap after checking the latest snapshot version.
func (s *MongoSnapshotStore) SetSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	if err := s.checkNotDeleted(ctx, snap.StreamName); err != nil {
		return err
	}

	latest, err := s.LoadSnapshot(ctx, snap.StreamName)
	switch {
	case err == nil:
		if latest.SnapshotVersion >= snap.SnapshotVersion {
			return errs.NewSnapshotConflictError(snap.StreamName, latest.SnapshotVersion, snap.SnapshotVersion)
		}
	case errors.Is(err, errs.ErrSnapshotNotFound):
	default:
		return err
	}

	if snap.ID == "" {
		snap.ID = uuid.NewUUID().String()
	}
	if _, err = s.collection.InsertOne(ctx, snap); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			latest, loadErr := s.LoadSnapshot(ctx, snap.StreamName)
			return duplicateConflict(snap.StreamName, snap.SnapshotVersion, latest, loadErr)
		}
		s.logger.ErrorContext(ctx, "failed to insert snapshot",
			slog.String("stream", snap.StreamName),
			slog.Int("snapshot_version", snap.SnapshotVersion),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// duplicateConflict builds the conflict for an insert that lost the race on
// the unique (stream_name, snapshot_version) index. A snapshot at attempted
// exists, so the last version is at least attempted; the re-read latest
// snapshot reports a writer that got further.
func duplicateConflict(stream string, attempted int, latest snapshot.Snapshot, loadErr error) error {
	last := attempted
	if loadErr == nil && latest.SnapshotVersion > last {
		last = latest.SnapshotVersion
	}
	return errs.NewSnapshotConflictError(stream, last, attempted)
}

// LoadSnapshot returns the latest snapshot of stream.
func (s *MongoSnapshotStore) LoadSnapshot(ctx context.Context, stream string) (snapshot.Snapshot, error) {
	if err := s.checkNotDeleted(ctx, stream); err != nil {
		return snapshot.Snapshot{}, err
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "snapshot_version", Value: -1}})
	var snap snapshot.Snapshot
	err := s.collection.FindOne(ctx, bson.M{"stream_name": stream}, opts).Decode(&snap)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return snapshot.Snapshot{}, fmt.Errorf("%w: %s", errs.ErrSnapshotNotFound, stream)
		}
		return snapshot.Snapshot{}, fmt.Errorf("failed to find snapshot: %w", err)
	}
	return snap, nil
}

// Delete marks the snapshot stream deleted.
func (s *MongoSnapshotStore) Delete(ctx context.Context, stream string) error {
	update := bson.M{"$set": bson.M{"deleted": true, "deleted_at": time.Now().UTC()}}
	opts := options.UpdateOne().SetUpsert(true)

	if _, err := s.streams.UpdateOne(ctx, bson.M{"_id": stream}, update, opts); err != nil {
		return fmt.Errorf("failed to delete snapshot stream: %w", err)
	}
	return nil
}

func (s *MongoSnapshotStore) checkNotDeleted(ctx context.Context, stream string) error {
	var doc snapshotStreamDocument
	err := s.streams.FindOne(ctx, bson.M{"_id": stream}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot stream state: %w", err)
	}
	if doc.Deleted {
		return fmt.Errorf("%w: %s", errs.ErrSnapshotDeleted, stream)
	}
	return nil
}
