package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
)

// PostgresStore persists snapshots in the flow_snapshots table (see
// migrations), one row per user.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, userID int64, snap Snapshot) error {
	payload, err := json.Marshal(Scrub(snap))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flow_snapshots (user_id, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		userID, payload)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, userID int64) (Snapshot, bool, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM flow_snapshots WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false, nil
	}
	return Sanitize(snap), true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM flow_snapshots WHERE user_id = $1`, userID)
	return err
}
