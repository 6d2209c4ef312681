package postgres

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the pgx stdlib driver so stores stay database/sql based.
	_ "github.com/jackc/pgx/v5/stdlib"

	"repogator/internal/platform/config"
)

// Open connects to PostgreSQL and verifies the connection before returning.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}
