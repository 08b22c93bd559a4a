package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"editpool/api/internal/persist"
)

// PostgresStore keeps session blobs in the sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM sessions WHERE key = $1`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", persist.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return blob, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, blob []byte) error {
	const upsert = `
		INSERT INTO sessions (key, blob)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, upsert, key, string(blob)); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
