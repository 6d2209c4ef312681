package repos

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists tracked repositories in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a postgres-backed tracked-repo store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tracked_repos table if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS tracked_repos (
			id             TEXT PRIMARY KEY,
			tenant_id      TEXT NOT NULL,
			repo_full_name TEXT NOT NULL,
			webhook_secret TEXT NOT NULL,
			webhook_id     BIGINT,
			active         BOOLEAN NOT NULL DEFAULT TRUE,
			created_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tracked_repos_full_name ON tracked_repos (repo_full_name);
		CREATE INDEX IF NOT EXISTS idx_tracked_repos_tenant ON tracked_repos (tenant_id);
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate tracked_repos: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, r *TrackedRepo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_repos (id, tenant_id, repo_full_name, webhook_secret, webhook_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.TenantID, r.RepoFullName, r.WebhookSecret, r.WebhookID, r.Active, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create tracked repo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActiveByFullName(ctx context.Context, fullName string) (*TrackedRepo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, repo_full_name, webhook_secret, webhook_id, active, created_at
		FROM tracked_repos WHERE repo_full_name = $1 AND active = TRUE
	`, fullName)
	var r TrackedRepo
	err := row.Scan(&r.ID, &r.TenantID, &r.RepoFullName, &r.WebhookSecret, &r.WebhookID, &r.Active, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked repo: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*TrackedRepo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, repo_full_name, webhook_secret, webhook_id, active, created_at
		FROM tracked_repos WHERE tenant_id = $1 ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tracked repos: %w", err)
	}
	defer rows.Close()

	var out []*TrackedRepo
	for rows.Next() {
		var r TrackedRepo
		if err := rows.Scan(&r.ID, &r.TenantID, &r.RepoFullName, &r.WebhookSecret, &r.WebhookID, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tracked repo: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tracked_repos SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate tracked repo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
