package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/portalchat/internal/models"
)

type AnnouncementStore struct {
	pool *pgxpool.Pool
}

func NewAnnouncementStore(pool *pgxpool.Pool) *AnnouncementStore {
	return &AnnouncementStore{pool: pool}
}

const announcementColumns = `id, title, content, priority, author, date, status, scheduled_at`

func (s *AnnouncementStore) Create(ctx context.Context, a *models.Announcement) error {
	query := `
		INSERT INTO announcements (` + announcementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Title, a.Content, a.Priority, a.Author, a.Date, string(a.Status), a.ScheduledAt)
	if err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

func (s *AnnouncementStore) ListPublished(ctx context.Context) ([]models.Announcement, error) {
	return s.list(ctx, `
		SELECT `+announcementColumns+` FROM announcements
		WHERE status = 'published'
		ORDER BY date DESC`)
}

func (s *AnnouncementStore) ListDue(ctx context.Context, now time.Time) ([]models.Announcement, error) {
	return s.list(ctx, `
		SELECT `+announcementColumns+` FROM announcements
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at`, now)
}

// MarkPublished is conditional on the row still being scheduled, so two
// publishers racing on the same announcement broadcast it once.
func (s *AnnouncementStore) MarkPublished(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE announcements SET status = 'published', date = $2
		WHERE id = $1 AND status = 'scheduled'`, id, at)
	if err != nil {
		return false, fmt.Errorf("publish announcement: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *AnnouncementStore) list(ctx context.Context, query string, args ...any) ([]models.Announcement, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	out := make([]models.Announcement, 0)
	for rows.Next() {
		var (
			a      models.Announcement
			status string
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Priority, &a.Author, &a.Date, &status, &a.ScheduledAt); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		a.Status = models.AnnouncementStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate announcements: %w", err)
	}
	return out, nil
}
