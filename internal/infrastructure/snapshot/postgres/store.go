package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/infrastructure/snapshot"
)

const (
	schemaLockKey   int64 = 2026021001
	snapshotLockKey int64 = 2026021002
	snapshotRowID         = 1
)

// SnapshotStore keeps the whole registry as one JSONB row, mirroring the file
// backend's single-document snapshot.
type SnapshotStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/sweep startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS registry_snapshots (
	id SMALLINT PRIMARY KEY,
	payload JSONB NOT NULL,
	document_count INTEGER NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_events (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	event_type TEXT NOT NULL,
	from_status TEXT,
	to_status TEXT,
	actor TEXT,
	confidence DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_events_document ON document_events(document_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context) ([]domain.Document, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM registry_snapshots WHERE id = $1`, snapshotRowID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrStorage, "load snapshot", err)
	}

	docs, err := snapshot.Decode(payload)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "load snapshot", err)
	}
	return docs, nil
}

// Save replaces the snapshot row. The advisory lock keeps a concurrent sweep
// CLI from interleaving its write with the API's.
func (s *SnapshotStore) Save(ctx context.Context, docs []domain.Document) error {
	payload, err := snapshot.Encode(docs)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "save snapshot", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "begin snapshot tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, snapshotLockKey); err != nil {
		return domain.WrapError(domain.ErrStorage, "acquire snapshot lock", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO registry_snapshots (id, payload, document_count, saved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET payload = EXCLUDED.payload, document_count = EXCLUDED.document_count, saved_at = EXCLUDED.saved_at
`, snapshotRowID, payload, len(docs), s.now())
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "upsert snapshot", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrStorage, "commit snapshot tx", err)
	}
	return nil
}
