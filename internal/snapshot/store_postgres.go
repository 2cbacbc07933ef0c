package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"pidgate/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

const createSnapshotsTable = `
	CREATE TABLE IF NOT EXISTS snapshots (
		kind         TEXT        NOT NULL,
		version      BIGINT      NOT NULL,
		published_at TIMESTAMPTZ NOT NULL,
		payload      BYTEA       NOT NULL,
		PRIMARY KEY (kind, version)
	);
	CREATE INDEX IF NOT EXISTS snapshots_kind_published_at ON snapshots (kind, published_at DESC);
`

// PostgresStore persists snapshots in a single append-only table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the snapshots table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSnapshotsTable); err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO snapshots (kind, version, published_at, payload)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM snapshots WHERE kind = $1 AND version >= $2
		)
	`
	res, err := s.db.ExecContext(ctx, query, rec.Kind, int64(rec.Version), rec.Timestamp.UTC(), rec.Payload)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("snapshot %s v%d: %w", rec.Kind, rec.Version, sentinel.ErrConflict)
		}
		return fmt.Errorf("put snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s v%d: %w", rec.Kind, rec.Version, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind string, version uint64) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, version, published_at, payload FROM snapshots WHERE kind = $1 AND version = $2`,
		kind, int64(version))
	return scanRecord(row)
}

func (s *PostgresStore) Latest(ctx context.Context, kind string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, version, published_at, payload FROM snapshots WHERE kind = $1 ORDER BY version DESC LIMIT 1`,
		kind)
	return scanRecord(row)
}

func (s *PostgresStore) AtOrBefore(ctx context.Context, kind string, t time.Time) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kind, version, published_at, payload FROM snapshots
		 WHERE kind = $1 AND published_at <= $2 ORDER BY version DESC LIMIT 1`,
		kind, t.UTC())
	return scanRecord(row)
}

func (s *PostgresStore) List(ctx context.Context, kind string, limit int) ([]Record, error) {
	query := `SELECT kind, version, published_at, payload FROM snapshots WHERE kind = $1 ORDER BY version DESC`
	args := []any{kind}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		version int64
	)
	if err := row.Scan(&rec.Kind, &version, &rec.Timestamp, &rec.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, sentinel.ErrNotFound
		}
		return Record{}, fmt.Errorf("scan snapshot: %w", err)
	}
	rec.Version = uint64(version)
	return rec, nil
}
