package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TombstoneStore struct {
	pool *pgxpool.Pool
}

func NewTombstoneStore(pool *pgxpool.Pool) *TombstoneStore {
	return &TombstoneStore{pool: pool}
}

func (s *TombstoneStore) Hide(ctx context.Context, userID string, messageIDs []string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	// ON CONFLICT DO NOTHING keeps "delete for me" idempotent and leaves the
	// original created_at alone, so a repeat does not extend retention.
	query := `
		INSERT INTO deleted_messages (user_id, message_id, created_at)
		SELECT $1, unnest($2::text[]), $3
		ON CONFLICT (user_id, message_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, userID, messageIDs, at); err != nil {
		return fmt.Errorf("insert tombstones: %w", err)
	}
	return nil
}

func (s *TombstoneStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deleted_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *TombstoneStore) IsHidden(ctx context.Context, userID, messageID string) (bool, error) {
	var hidden bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM deleted_messages WHERE user_id = $1 AND message_id = $2)`,
		userID, messageID,
	).Scan(&hidden)
	if err != nil {
		return false, fmt.Errorf("check tombstone: %w", err)
	}
	return hidden, nil
}
