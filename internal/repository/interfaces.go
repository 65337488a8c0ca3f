package repository

import (
	"context"
	"time"

	"github.com/lalith-99/portalchat/internal/models"
)

// Every method takes ctx first: all of these cross the process boundary in
// the Postgres implementation, and the socket loop cancels them on close.
//
// Lookups of a single row return (nil, nil) when the row does not exist. The
// chat layer decides whether absence is an error.

// MessageRepository is the durable Message Store.
type MessageRepository interface {
	// Create persists a fully built message. The caller assigns ID and Timestamp.
	Create(ctx context.Context, msg *models.Message) error

	// GetByID returns one message, or nil if it does not exist.
	GetByID(ctx context.Context, id string) (*models.Message, error)

	// GetByIDs returns the messages that exist among ids, in timestamp order.
	GetByIDs(ctx context.Context, ids []string) ([]models.Message, error)

	// AddToSet is the single idempotent union primitive for delivered_to and
	// read_by. It adds every userID to field on every message in messageIDs
	// and returns the ids of the messages that actually changed.
	AddToSet(ctx context.Context, field models.SetField, messageIDs []string, userIDs []string) ([]string, error)

	// AddToSetInChannel applies AddToSet to every message in a channel.
	AddToSetInChannel(ctx context.Context, field models.SetField, channelID string, userID string) (int64, error)

	// ListChannel returns the newest limit messages of a channel, oldest first.
	// When viewerID is set, messages tombstoned for that viewer are skipped.
	ListChannel(ctx context.Context, channelID, viewerID string, limit int) ([]models.Message, error)

	// ListDirect returns the newest limit messages exchanged between a and b,
	// oldest first, with the same viewer filtering as ListChannel.
	ListDirect(ctx context.Context, a, b, viewerID string, limit int) ([]models.Message, error)

	// ListUndelivered returns direct messages addressed to userID and channel
	// messages in channelIDs whose delivered_to set lacks userID, skipping
	// messages tombstoned for userID. Sorted by timestamp, then insertion order.
	ListUndelivered(ctx context.Context, userID string, channelIDs []string) ([]models.Message, error)

	// CountUnread groups unread messages for userID: direct messages by
	// sender, channel messages (not sent by userID) by channel id.
	CountUnread(ctx context.Context, userID string, channelIDs []string) (map[string]int, error)

	// MessageIDsInChannel and MessageIDsBetween feed the soft-clear endpoints.
	MessageIDsInChannel(ctx context.Context, channelID string) ([]string, error)
	MessageIDsBetween(ctx context.Context, a, b string) ([]string, error)

	// UpdateReactions runs mutate against the current reaction list under a
	// row lock and stores the result. Returns nil, nil if the message is missing.
	UpdateReactions(ctx context.Context, id string, mutate func([]models.Reaction) []models.Reaction) ([]models.Reaction, error)

	// Redact replaces content with placeholder and flags the message deleted.
	// A message redacted twice keeps its first deleted_at. Returns false if
	// the message does not exist.
	Redact(ctx context.Context, id, placeholder string, at time.Time) (bool, error)

	// Delete physically removes a message. Returns false if it did not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// PurgeRedacted removes messages redacted before cutoff.
	PurgeRedacted(ctx context.Context, cutoff time.Time) (int64, error)
}

// TombstoneRepository stores per-user soft deletions.
type TombstoneRepository interface {
	// Hide inserts a tombstone per message id. Existing tombstones are left alone.
	Hide(ctx context.Context, userID string, messageIDs []string, at time.Time) error

	// IsHidden reports whether userID has a tombstone for messageID.
	IsHidden(ctx context.Context, userID, messageID string) (bool, error)

	// PurgeBefore removes tombstones created before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepository stores offline notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error

	// ListUnread returns a user's unread notifications, oldest first.
	ListUnread(ctx context.Context, userID string) ([]models.Notification, error)

	// MarkRead flags the given notifications as read in one statement.
	MarkRead(ctx context.Context, ids []string) error
}

// DirectoryRepository is the read side of the HR directory.
type DirectoryRepository interface {
	// GetEmployee returns nil if userID is not in the directory.
	GetEmployee(ctx context.Context, userID string) (*models.Employee, error)

	// ListEmployees returns every active employee.
	ListEmployees(ctx context.Context) ([]models.Employee, error)
}

// AnnouncementRepository persists announcements.
type AnnouncementRepository interface {
	Create(ctx context.Context, a *models.Announcement) error

	// ListPublished returns published announcements, newest first.
	ListPublished(ctx context.Context) ([]models.Announcement, error)

	// ListDue returns scheduled announcements whose time has come.
	ListDue(ctx context.Context, now time.Time) ([]models.Announcement, error)

	// MarkPublished flips a scheduled announcement to published. Returns false
	// when another publisher got there first.
	MarkPublished(ctx context.Context, id string, at time.Time) (bool, error)
}
