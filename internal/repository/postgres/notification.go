package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/portalchat/internal/models"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, sender_id, sender_name, message_id, message_content,
			channel_id, recipient_id, type, ts, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		n.ID,
		n.UserID,
		n.SenderID,
		n.SenderName,
		n.MessageID,
		n.MessageContent,
		nullString(n.ChannelID),
		nullString(n.RecipientID),
		string(n.Type),
		n.Timestamp,
		n.IsRead,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, sender_id, sender_name, message_id, message_content,
			channel_id, recipient_id, type, ts, is_read
		FROM notifications
		WHERE user_id = $1 AND NOT is_read
		ORDER BY ts`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		var (
			n                      models.Notification
			channelID, recipientID *string
			typ                    string
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.SenderID,
			&n.SenderName,
			&n.MessageID,
			&n.MessageContent,
			&channelID,
			&recipientID,
			&typ,
			&n.Timestamp,
			&n.IsRead,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ChannelID = deref(channelID)
		n.RecipientID = deref(recipientID)
		n.Type = models.NotificationType(typ)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `UPDATE notifications SET is_read = true WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
