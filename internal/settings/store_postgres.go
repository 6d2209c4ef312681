package settings

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists tenant settings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a postgres-backed settings store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tenant_settings table if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS tenant_settings (
			tenant_id        TEXT PRIMARY KEY,
			openrouter_key   TEXT NOT NULL DEFAULT '',
			openrouter_model TEXT NOT NULL DEFAULT '',
			embedding_key    TEXT NOT NULL DEFAULT '',
			embedding_model  TEXT NOT NULL DEFAULT '',
			admin            BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at       TIMESTAMPTZ NOT NULL
		);
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate tenant_settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByTenant(ctx context.Context, tenantID string) (*Settings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, openrouter_key, openrouter_model, embedding_key, embedding_model, admin, updated_at
		FROM tenant_settings WHERE tenant_id = $1
	`, tenantID)
	var st Settings
	err := row.Scan(&st.TenantID, &st.OpenRouterKey, &st.OpenRouterModel,
		&st.EmbeddingKey, &st.EmbeddingModel, &st.Admin, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant settings: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, st *Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_settings (tenant_id, openrouter_key, openrouter_model, embedding_key, embedding_model, admin, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			openrouter_key = EXCLUDED.openrouter_key,
			openrouter_model = EXCLUDED.openrouter_model,
			embedding_key = EXCLUDED.embedding_key,
			embedding_model = EXCLUDED.embedding_model,
			admin = EXCLUDED.admin,
			updated_at = EXCLUDED.updated_at
	`, st.TenantID, st.OpenRouterKey, st.OpenRouterModel, st.EmbeddingKey, st.EmbeddingModel, st.Admin, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert tenant settings: %w", err)
	}
	return nil
}
