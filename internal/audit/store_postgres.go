package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists audit entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a postgres-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit_logs table if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id             TEXT PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			level          TEXT NOT NULL,
			message        TEXT NOT NULL,
			context        JSONB,
			created_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_correlation ON audit_logs (correlation_id);
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate audit_logs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	var contextJSON any
	if e.Context != nil {
		raw, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("encode audit context: %w", err)
		}
		contextJSON = raw
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, correlation_id, level, message, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.CorrelationID, e.Level, e.Message, contextJSON, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCorrelation(ctx context.Context, correlationID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correlation_id, level, message, context, created_at
		FROM audit_logs WHERE correlation_id = $1 ORDER BY created_at
	`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var contextJSON []byte
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.Level, &e.Message, &contextJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
				return nil, fmt.Errorf("decode audit context: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
