package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
)

// Collection names used by MongoEventStore.
const (
	EventsCollection   = "events"
	StreamsCollection  = "streams"
	CountersCollection = "counters"
)

const sequenceCounterID = "events_sequence"

// streamDocument tracks stream lifecycle.
type streamDocument struct {
	Name      string    `bson:"_id"`
	Deleted   bool      `bson:"deleted"`
	DeletedAt time.Time `bson:"deleted_at,omitempty"`
}

// MongoEventStore implements appcore.EventStore on MongoDB. It uses the
// PassThrough policy: an append is accepted only when the stream still ends
// at the version the caller loaded.
type MongoEventStore struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
	streams    *mongo.Collection
	counters   *mongo.Collection
	serializer *EventSerializer
	policy     appcore.ExpectedVersionPolicy
	logger     *slog.Logger
}

// Option configures MongoEventStore.
type Option func(*MongoEventStore)

// WithLogger sets the logger for event store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MongoEventStore) {
		s.logger = logger
	}
}

// NewMongoEventStore creates a MongoDB event store
func NewMongoEventStore(client *mongo.Client, databaseName string, opts ...Option) *MongoEventStore {
	database := client.Database(databaseName)

	s := &MongoEventStore{
		client:     client,
		database:   database,
		collection: database.Collection(EventsCollection),
		streams:    database.Collection(StreamsCollection),
		counters:   database.Collection(CountersCollection),
		serializer: NewEventSerializer(),
		policy:     appcore.PassThrough{},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// VersionPolicy returns PassThrough.
func (s *MongoEventStore) VersionPolicy() appcore.ExpectedVersionPolicy {
	return s.policy
}

// Append stores records in one transaction after the version check.
func (s *MongoEventStore) Append(
	ctx context.Context,
	stream string,
	records []event.Record,
	expectedVersion int,
) ([]event.Record, error) {
	session, err := s.client.StartSession()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to start MongoDB session for event store",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		// 1. Stream must not be deleted
		if errDeleted := s.checkNotDeleted(txCtx, stream); errDeleted != nil {
			return nil, errDeleted
		}

		// 2. Optimistic concurrency check
		lastVersion, errVersion := s.lastVersion(txCtx, stream)
		if errVersion != nil {
			return nil, errVersion
		}
		if s.policy.Conflicts(lastVersion, expectedVersion) {
			s.logger.WarnContext(ctx, "concurrency conflict in event store",
				slog.String("stream", stream),
				slog.Int("expected_version", expectedVersion),
				slog.Int("last_version", lastVersion),
			)
			return nil, errs.NewConflictError(stream, lastVersion, expectedVersion)
		}
		if errBatch := validateBatch(stream, records, lastVersion); errBatch != nil {
			return nil, errBatch
		}

		// 3. Reserve sequence numbers
		firstSeq, errSeq := s.reserveSequence(txCtx, len(records))
		if errSeq != nil {
			return nil, errSeq
		}
		stored := make([]event.Record, len(records))
		for i, rec := range records {
			rec.Sequence = firstSeq + int64(i)
			stored[i] = rec
		}

		// 4. Insert (bulk)
		documents, errSerialize := s.serializer.SerializeMany(stored)
		if errSerialize != nil {
			return nil, errSerialize
		}
		docs := make([]any, len(documents))
		for i, doc := range documents {
			docs[i] = doc
		}

		if _, errInsert := s.collection.InsertMany(txCtx, docs); errInsert != nil {
			// unique (stream_name, version) index: another writer got there first
			if mongo.IsDuplicateKeyError(errInsert) {
				s.logger.WarnContext(ctx, "duplicate key error in event store (concurrency)",
					slog.String("stream", stream),
					slog.Int("events_count", len(records)),
				)
				return nil, errs.NewConflictError(stream, lastVersion, expectedVersion)
			}
			return nil, fmt.Errorf("failed to insert events: %w", errInsert)
		}

		return stored, nil
	})
	if err != nil {
		if !errors.Is(err, errs.ErrVersionConflict) && !errors.Is(err, errs.ErrStreamDeleted) {
			s.logger.ErrorContext(ctx, "event store transaction failed",
				slog.String("stream", stream),
				slog.Int("events_count", len(records)),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	stored, _ := result.([]event.Record)
	return stored, nil
}

// Get returns every event of the stream in version order.
func (s *MongoEventStore) Get(ctx context.Context, stream string) ([]event.Record, error) {
	if err := s.checkNotDeleted(ctx, stream); err != nil {
		return nil, err
	}

	filter := bson.M{"stream_name": stream}
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to find events in event store",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*EventDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	return s.serializer.DeserializeMany(docs)
}

// GetByVersion returns the event at version.
func (s *MongoEventStore) GetByVersion(ctx context.Context, stream string, version int) (event.Record, error) {
	if err := s.checkNotDeleted(ctx, stream); err != nil {
		return event.Record{}, err
	}
	return s.findOne(ctx, stream, bson.M{"stream_name": stream, "version": version}, nil)
}

// GetLastEvent returns the event with the highest version.
func (s *MongoEventStore) GetLastEvent(ctx context.Context, stream string) (event.Record, error) {
	if err := s.checkNotDeleted(ctx, stream); err != nil {
		return event.Record{}, err
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	return s.findOne(ctx, stream, bson.M{"stream_name": stream}, opts)
}

// Delete flips the stream's deleted flag. Events are kept.
func (s *MongoEventStore) Delete(ctx context.Context, stream string) error {
	update := bson.M{"$set": bson.M{"deleted": true, "deleted_at": time.Now().UTC()}}
	opts := options.UpdateOne().SetUpsert(true)

	if _, err := s.streams.UpdateOne(ctx, bson.M{"_id": stream}, update, opts); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete stream",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	return nil
}

func (s *MongoEventStore) findOne(
	ctx context.Context,
	stream string,
	filter bson.M,
	opts *options.FindOneOptionsBuilder,
) (event.Record, error) {
	var doc EventDocument
	var err error
	if opts != nil {
		err = s.collection.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = s.collection.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return event.Record{}, fmt.Errorf("%w: %s", errs.ErrStreamNotFound, stream)
		}
		return event.Record{}, fmt.Errorf("failed to find event: %w", err)
	}
	return s.serializer.Deserialize(&doc)
}

func (s *MongoEventStore) checkNotDeleted(ctx context.Context, stream string) error {
	var doc streamDocument
	err := s.streams.FindOne(ctx, bson.M{"_id": stream}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return fmt.Errorf("failed to read stream state: %w", err)
	}
	if doc.Deleted {
		return fmt.Errorf("%w: %s", errs.ErrStreamDeleted, stream)
	}
	return nil
}

// lastVersion returns the highest stored version, -1 for an empty stream.
func (s *MongoEventStore) lastVersion(ctx context.Context, stream string) (int, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})

	var doc EventDocument
	err := s.collection.FindOne(ctx, bson.M{"stream_name": stream}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return noVersion, nil
		}
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return doc.Version, nil
}

// reserveSequence increments the global counter by n and returns the first
// reserved value.
func (s *MongoEventStore) reserveSequence(ctx context.Context, n int) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": sequenceCounterID},
		bson.M{"$inc": bson.M{"value": int64(n)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve sequence: %w", err)
	}
	return counter.Value - int64(n) + 1, nil
}
