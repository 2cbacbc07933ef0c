package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"pidgate/pkg/domain"
	"pidgate/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// The rules turn UPDATE and DELETE into no-ops so the table stays
// append-only even for callers that bypass this package.
const createAuditTable = `
	CREATE TABLE IF NOT EXISTS audit_log (
		id         UUID        PRIMARY KEY,
		pid        TEXT        NOT NULL,
		requestor  TEXT        NOT NULL,
		action     TEXT        NOT NULL,
		outcome    TEXT        NOT NULL,
		reason     TEXT        NOT NULL DEFAULT '',
		request_id TEXT        NOT NULL DEFAULT '',
		client_ip  TEXT        NOT NULL DEFAULT '',
		device     TEXT        NOT NULL DEFAULT '',
		timestamp  TIMESTAMPTZ NOT NULL
	);
	ALTER TABLE audit_log ADD COLUMN IF NOT EXISTS device TEXT NOT NULL DEFAULT '';
	CREATE INDEX IF NOT EXISTS audit_log_pid_timestamp ON audit_log (pid, timestamp DESC);
	CREATE OR REPLACE RULE audit_log_no_update AS ON UPDATE TO audit_log DO INSTEAD NOTHING;
	CREATE OR REPLACE RULE audit_log_no_delete AS ON DELETE TO audit_log DO INSTEAD NOTHING;
`

// PostgresStore keeps audit entries in the audit_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAuditTable); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO audit_log (id, pid, requestor, action, outcome, reason, request_id, client_ip, device, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		entry.PID,
		entry.Requestor,
		entry.Action,
		string(entry.Outcome),
		entry.Reason,
		entry.RequestID,
		entry.ClientIP,
		entry.Device,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("audit entry %s: %w", entry.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPID(ctx context.Context, pid string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pid, requestor, action, outcome, reason, request_id, client_ip, device, timestamp
		FROM audit_log
		WHERE pid = $1
		ORDER BY timestamp DESC, id
	`, pid)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pid, requestor, action, outcome, reason, request_id, client_ip, device, timestamp
		FROM audit_log
		ORDER BY timestamp DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			id      uuid.UUID
			outcome string
		)
		err := rows.Scan(
			&id,
			&entry.PID,
			&entry.Requestor,
			&entry.Action,
			&outcome,
			&entry.Reason,
			&entry.RequestID,
			&entry.ClientIP,
			&entry.Device,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = domain.AuditEntryID(id)
		entry.Outcome = Outcome(outcome)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
