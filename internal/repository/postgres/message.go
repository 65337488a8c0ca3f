package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/portalchat/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, kind, sender_id, sender_name, content, ts, channel_id, recipient_ids,
	file_name, file_type, file_size, file_url, reactions, delivered_to, read_by, deleted, deleted_at`

// notHiddenFor filters out messages tombstoned for the user bound at $N.
func notHiddenFor(param string) string {
	return `NOT EXISTS (SELECT 1 FROM deleted_messages d WHERE d.user_id = ` + param + ` AND d.message_id = m.id)`
}

// setColumn maps a SetField to its column. Only these two names ever reach SQL.
func setColumn(field models.SetField) (string, error) {
	switch field {
	case models.FieldDeliveredTo:
		return "delivered_to", nil
	case models.FieldReadBy:
		return "read_by", nil
	}
	return "", fmt.Errorf("unknown set field %q", field)
}

func (s *MessageStore) Create(ctx context.Context, msg *models.Message) error {
	reactions, err := json.Marshal(nonNilReactions(msg.Reactions))
	if err != nil {
		return fmt.Errorf("encode reactions: %w", err)
	}

	query := `
		INSERT INTO messages (id, kind, sender_id, sender_name, content, ts, channel_id, recipient_ids,
			file_name, file_type, file_size, file_url, reactions, delivered_to, read_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15)`

	_, err = s.pool.Exec(ctx, query,
		msg.ID,
		string(msg.Kind),
		msg.SenderID,
		msg.SenderName,
		msg.Content,
		msg.Timestamp,
		nullString(msg.ChannelID),
		nonNilStrings(msg.RecipientID),
		nullString(msg.FileName),
		nullString(msg.FileType),
		nullInt64(msg.FileSize),
		nullString(msg.FileURL),
		string(reactions),
		nonNilStrings(msg.DeliveredTo),
		nonNilStrings(msg.ReadBy),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = $1`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByIDs(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = ANY($1) ORDER BY m.ts, m.seq`
	return s.queryMessages(ctx, query, ids)
}

func (s *MessageStore) AddToSet(ctx context.Context, field models.SetField, messageIDs []string, userIDs []string) ([]string, error) {
	if len(messageIDs) == 0 || len(userIDs) == 0 {
		return []string{}, nil
	}
	col, err := setColumn(field)
	if err != nil {
		return nil, err
	}

	// The containment check makes the update a no-op for rows that already
	// hold every user, so RETURNING only reports rows that really grew. The
	// union happens inside one UPDATE, so concurrent acks never lose a member.
	query := fmt.Sprintf(`
		UPDATE messages
		SET %[1]s = ARRAY(SELECT DISTINCT unnest(%[1]s || $2::text[]))
		WHERE id = ANY($1) AND NOT (%[1]s @> $2::text[])
		RETURNING id`, col)

	rows, err := s.pool.Query(ctx, query, messageIDs, userIDs)
	if err != nil {
		return nil, fmt.Errorf("add to %s: %w", col, err)
	}
	defer rows.Close()

	changed := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s update: %w", col, err)
		}
		changed = append(changed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s update: %w", col, err)
	}
	return changed, nil
}

func (s *MessageStore) AddToSetInChannel(ctx context.Context, field models.SetField, channelID string, userID string) (int64, error) {
	col, err := setColumn(field)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		UPDATE messages
		SET %[1]s = array_append(%[1]s, $2)
		WHERE kind = 'channel' AND channel_id = $1 AND NOT ($2 = ANY(%[1]s))`, col)

	tag, err := s.pool.Exec(ctx, query, channelID, userID)
	if err != nil {
		return 0, fmt.Errorf("add to %s in channel: %w", col, err)
	}
	return tag.RowsAffected(), nil
}

func (s *MessageStore) ListChannel(ctx context.Context, channelID, viewerID string, limit int) ([]models.Message, error) {
	// Newest page first, then flipped so the client replays oldest first.
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT m.seq, ` + qualified("m") + `
			FROM messages m
			WHERE m.kind = 'channel' AND m.channel_id = $1
			  AND ($2 = '' OR ` + notHiddenFor("$2") + `)
			ORDER BY m.ts DESC, m.seq DESC
			LIMIT $3
		) m
		ORDER BY m.ts, m.seq`
	return s.queryMessages(ctx, query, channelID, viewerID, limit)
}

func (s *MessageStore) ListDirect(ctx context.Context, a, b, viewerID string, limit int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT m.seq, ` + qualified("m") + `
			FROM messages m
			WHERE m.kind = 'direct'
			  AND ((m.sender_id = $1 AND $2 = ANY(m.recipient_ids))
			    OR (m.sender_id = $2 AND $1 = ANY(m.recipient_ids)))
			  AND ($3 = '' OR ` + notHiddenFor("$3") + `)
			ORDER BY m.ts DESC, m.seq DESC
			LIMIT $4
		) m
		ORDER BY m.ts, m.seq`
	return s.queryMessages(ctx, query, a, b, viewerID, limit)
}

func (s *MessageStore) ListUndelivered(ctx context.Context, userID string, channelIDs []string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE NOT ($1 = ANY(m.delivered_to))
		  AND ((m.kind = 'direct' AND $1 = ANY(m.recipient_ids))
		    OR (m.kind = 'channel' AND m.channel_id = ANY($2)))
		  AND ` + notHiddenFor("$1") + `
		ORDER BY m.ts, m.seq`
	return s.queryMessages(ctx, query, userID, nonNilStrings(channelIDs))
}

func (s *MessageStore) CountUnread(ctx context.Context, userID string, channelIDs []string) (map[string]int, error) {
	query := `
		SELECT m.sender_id, count(*)
		FROM messages m
		WHERE m.kind = 'direct' AND $1 = ANY(m.recipient_ids) AND NOT ($1 = ANY(m.read_by))
		  AND ` + notHiddenFor("$1") + `
		GROUP BY m.sender_id
		UNION ALL
		SELECT m.channel_id, count(*)
		FROM messages m
		WHERE m.kind = 'channel' AND m.channel_id = ANY($2) AND m.sender_id <> $1
		  AND NOT ($1 = ANY(m.read_by))
		  AND ` + notHiddenFor("$1") + `
		GROUP BY m.channel_id`

	rows, err := s.pool.Query(ctx, query, userID, nonNilStrings(channelIDs))
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[key] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread counts: %w", err)
	}
	return counts, nil
}

func (s *MessageStore) MessageIDsInChannel(ctx context.Context, channelID string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM messages WHERE kind = 'channel' AND channel_id = $1`, channelID)
}

func (s *MessageStore) MessageIDsBetween(ctx context.Context, a, b string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT id FROM messages
		WHERE kind = 'direct'
		  AND ((sender_id = $1 AND $2 = ANY(recipient_ids))
		    OR (sender_id = $2 AND $1 = ANY(recipient_ids)))`, a, b)
}

func (s *MessageStore) UpdateReactions(ctx context.Context, id string, mutate func([]models.Reaction) []models.Reaction) ([]models.Reaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reaction tx: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT reactions FROM messages WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock reactions: %w", err)
	}

	var current []models.Reaction
	if err := json.Unmarshal(raw, &current); err != nil {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}

	next := nonNilReactions(mutate(current))
	encoded, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode reactions: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE messages SET reactions = $2::jsonb WHERE id = $1`, id, string(encoded)); err != nil {
		return nil, fmt.Errorf("update reactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reactions: %w", err)
	}
	return next, nil
}

func (s *MessageStore) Redact(ctx context.Context, id, placeholder string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET content = $2, deleted = true, deleted_at = COALESCE(deleted_at, $3)
		WHERE id = $1`, id, placeholder, at)
	if err != nil {
		return false, fmt.Errorf("redact message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *MessageStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *MessageStore) PurgeRedacted(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE deleted AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge redacted messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *MessageStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *MessageStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message ids: %w", err)
	}
	return ids, nil
}

// scanMessage reads one row in messageColumns order. pgx.Row is satisfied by
// both QueryRow results and pgx.Rows.
func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg                         models.Message
		kind                        string
		channelID                   *string
		fileName, fileType, fileURL *string
		fileSize                    *int64
		reactions                   []byte
		recipients                  []string
	)
	err := row.Scan(
		&msg.ID,
		&kind,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Content,
		&msg.Timestamp,
		&channelID,
		&recipients,
		&fileName,
		&fileType,
		&fileSize,
		&fileURL,
		&reactions,
		&msg.DeliveredTo,
		&msg.ReadBy,
		&msg.Deleted,
		&msg.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Kind = models.MessageKind(kind)
	msg.ChannelID = deref(channelID)
	msg.FileName = deref(fileName)
	msg.FileType = deref(fileType)
	msg.FileURL = deref(fileURL)
	if fileSize != nil {
		msg.FileSize = *fileSize
	}
	if len(recipients) > 0 {
		msg.RecipientID = models.Recipients(recipients)
	}
	if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}
	msg.Reactions = nonNilReactions(msg.Reactions)
	msg.DeliveredTo = nonNilStrings(msg.DeliveredTo)
	msg.ReadBy = nonNilStrings(msg.ReadBy)
	return &msg, nil
}

func qualified(alias string) string {
	return alias + `.id, ` + alias + `.kind, ` + alias + `.sender_id, ` + alias + `.sender_name, ` +
		alias + `.content, ` + alias + `.ts, ` + alias + `.channel_id, ` + alias + `.recipient_ids, ` +
		alias + `.file_name, ` + alias + `.file_type, ` + alias + `.file_size, ` + alias + `.file_url, ` +
		alias + `.reactions, ` + alias + `.delivered_to, ` + alias + `.read_by, ` + alias + `.deleted, ` +
		alias + `.deleted_at`
}
