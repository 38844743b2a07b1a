package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore persists cache entries in the cache_entries table (see
// migrations). It is safe for concurrent use; the pool handles locking.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type cacheRow struct {
	Payload  []byte    `db:"payload"`
	StoredAt time.Time `db:"stored_at"`
}

// Get reads one entry; ErrNotFound for missing keys.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row,
		`SELECT payload, stored_at FROM cache_entries WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return row.Payload, row.StoredAt, nil
}

// Set upserts one entry.
func (s *PostgresStore) Set(ctx context.Context, key string, payload []byte, storedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, payload, stored_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, stored_at = EXCLUDED.stored_at`,
		key, payload, storedAt)
	return err
}

// Delete removes one entry; deleting a missing key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	return err
}

// Clear removes every entry.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return err
}
