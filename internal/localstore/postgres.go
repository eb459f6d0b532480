package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// migrations create the key-value table. They are idempotent and applied in
// order on every start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS storefront_kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS storefront_kv_updated_at_idx ON storefront_kv (updated_at)`,
}

// Postgres keeps values in a single PostgreSQL table.
type Postgres struct {
	db *sqlx.DB
}

// OpenPostgres connects with the lib/pq driver and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing handle. Migrations are not applied.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// ApplyMigrations creates the storage table if it does not exist.
func ApplyMigrations(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.GetContext(ctx, &value, `SELECT value FROM storefront_kv WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO storefront_kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM storefront_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}
