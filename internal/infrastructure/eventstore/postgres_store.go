package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/lllypuk/eventcore/internal/application/appcore"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// PostgresSchema creates the tables used by PostgresEventStore.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS event_streams (
	name         TEXT PRIMARY KEY,
	last_version INTEGER NOT NULL DEFAULT -1,
	deleted      BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS events (
	sequence    BIGSERIAL PRIMARY KEY,
	event_id    TEXT NOT NULL UNIQUE,
	stream_id   TEXT NOT NULL,
	stream_name TEXT NOT NULL REFERENCES event_streams(name),
	version     INTEGER NOT NULL,
	event_type  TEXT NOT NULL,
	status      TEXT NOT NULL,
	payload     JSONB NOT NULL,
	metadata    JSONB NOT NULL,
	created_on  TIMESTAMPTZ NOT NULL,
	occurred_on TIMESTAMPTZ NOT NULL,
	UNIQUE (stream_name, version)
);
`

const pqUniqueViolation = "23505"

const selectEventColumns = `SELECT sequence, event_id, stream_id, stream_name, version, event_type, status,
	payload, metadata, created_on, occurred_on FROM events`

// PostgresEventStore implements appcore.EventStore on PostgreSQL with the
// LastPlusOne policy. The stream row is locked for the duration of an append.
type PostgresEventStore struct {
	db     *sql.DB
	policy appcore.ExpectedVersionPolicy
	logger *slog.Logger
}

// PostgresOption configures PostgresEventStore.
type PostgresOption func(*PostgresEventStore)

// WithPostgresLogger sets the logger.
func WithPostgresLogger(logger *slog.Logger) PostgresOption {
	return func(s *PostgresEventStore) {
		s.logger = logger
	}
}

// NewPostgresEventStore creates a PostgreSQL event store.
func NewPostgresEventStore(db *sql.DB, opts ...PostgresOption) *PostgresEventStore {
	s := &PostgresEventStore{
		db:     db,
		policy: appcore.LastPlusOne{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectPostgres opens and pings a connection pool.
func ConnectPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	return db, nil
}

// EnsureSchema creates missing tables.
func (s *PostgresEventStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to create event store schema: %w", err)
	}
	return nil
}

// VersionPolicy returns LastPlusOne.
func (s *PostgresEventStore) VersionPolicy() appcore.ExpectedVersionPolicy {
	return s.policy
}

// Append stores records in one transaction.
func (s *PostgresEventStore) Append(
	ctx context.Context,
	stream string,
	records []event.Record,
	expectedVersion int,
) ([]event.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO event_streams (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, stream,
	); err != nil {
		return nil, fmt.Errorf("failed to register stream: %w", err)
	}

	var lastVersion int
	var deleted bool
	if err = tx.QueryRowContext(ctx,
		`SELECT last_version, deleted FROM event_streams WHERE name = $1 FOR UPDATE`, stream,
	).Scan(&lastVersion, &deleted); err != nil {
		return nil, fmt.Errorf("failed to lock stream: %w", err)
	}
	if deleted {
		return nil, fmt.Errorf("%w: %s", errs.ErrStreamDeleted, stream)
	}
	if s.policy.Conflicts(lastVersion, expectedVersion) {
		s.logger.WarnContext(ctx, "concurrency conflict in event store",
			slog.String("stream", stream),
			slog.Int("expected_version", expectedVersion),
			slog.Int("last_version", lastVersion),
		)
		return nil, errs.NewConflictError(stream, lastVersion, expectedVersion)
	}
	if err = validateBatch(stream, records, lastVersion); err != nil {
		return nil, err
	}

	stored := make([]event.Record, len(records))
	for i, rec := range records {
		metadata, errMeta := json.Marshal(rec.Metadata)
		if errMeta != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", errMeta)
		}
		payload := rec.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}

		errInsert := tx.QueryRowContext(ctx,
			`INSERT INTO events (event_id, stream_id, stream_name, version, event_type, status,
				payload, metadata, created_on, occurred_on)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING sequence`,
			rec.EventID.String(), rec.StreamID.String(), stream, rec.Version, rec.EventType, rec.Status,
			[]byte(payload), metadata, rec.CreatedOn, rec.OccurredOn,
		).Scan(&rec.Sequence)
		if errInsert != nil {
			var pqErr *pq.Error
			if errors.As(errInsert, &pqErr) && pqErr.Code == pqUniqueViolation {
				return nil, errs.NewConflictError(stream, lastVersion, expectedVersion)
			}
			return nil, fmt.Errorf("failed to insert event: %w", errInsert)
		}
		stored[i] = rec
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE event_streams SET last_version = $2 WHERE name = $1`,
		stream, stored[len(stored)-1].Version,
	); err != nil {
		return nil, fmt.Errorf("failed to advance stream: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit events: %w", err)
	}
	return stored, nil
}

// Get returns every event of the stream in version order.
func (s *PostgresEventStore) Get(ctx context.Context, stream string) ([]event.Record, error) {
	if err := s.checkNotDeleted(ctx, stream); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		selectEventColumns+` WHERE stream_name = $1 ORDER BY version ASC`, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []event.Record
	for rows.Next() {
		rec, errScan := scanRecord(rows)
		if errScan != nil {
			return nil, errScan
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return records, nil
}

// GetByVersion returns the event at version.
func (s *PostgresEventStore) GetByVersion(ctx context.Context, stream string, version int) (event.Record, error) {
	if err := s.checkNotDeleted(ctx, stream); err != nil {
		return event.Record{}, err
	}
	row := s.db.QueryRowContext(ctx,
		selectEventColumns+` WHERE stream_name = $1 AND version = $2`, stream, version)
	return s.scanOne(row, stream)
}

// GetLastEvent returns the event with the highest version.
func (s *PostgresEventStore) GetLastEvent(ctx context.Context, stream string) (event.Record, error) {
	if err := s.checkNotDeleted(ctx, stream); err != nil {
		return event.Record{}, err
	}
	row := s.db.QueryRowContext(ctx,
		selectEventColumns+` WHERE stream_name = $1 ORDER BY version DESC LIMIT 1`, stream)
	return s.scanOne(row, stream)
}

// Delete flags the stream deleted.
func (s *PostgresEventStore) Delete(ctx context.Context, stream string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_streams (name, deleted, deleted_at) VALUES ($1, TRUE, NOW())
		 ON CONFLICT (name) DO UPDATE SET deleted = TRUE, deleted_at = NOW()`, stream)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete stream",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) checkNotDeleted(ctx context.Context, stream string) error {
	var deleted bool
	err := s.db.QueryRowContext(ctx,
		`SELECT deleted FROM event_streams WHERE name = $1`, stream).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stream state: %w", err)
	}
	if deleted {
		return fmt.Errorf("%w: %s", errs.ErrStreamDeleted, stream)
	}
	return nil
}

func (s *PostgresEventStore) scanOne(row *sql.Row, stream string) (event.Record, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Record{}, fmt.Errorf("%w: %s", errs.ErrStreamNotFound, stream)
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (event.Record, error) {
	var (
		rec               event.Record
		eventID, streamID string
		payload, metadata []byte
	)
	err := row.Scan(&rec.Sequence, &eventID, &streamID, &rec.StreamName, &rec.Version,
		&rec.EventType, &rec.Status, &payload, &metadata, &rec.CreatedOn, &rec.OccurredOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Record{}, err
		}
		return event.Record{}, fmt.Errorf("failed to scan event: %w", err)
	}

	if err = json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return event.Record{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	rec.EventID = uuid.UUID(eventID)
	rec.StreamID = uuid.UUID(streamID)
	rec.Payload = json.RawMessage(payload)
	return rec, nil
}
