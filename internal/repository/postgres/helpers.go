package postgres

import (
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/repository"
)

var (
	_ repository.MessageRepository      = (*MessageStore)(nil)
	_ repository.TombstoneRepository    = (*TombstoneStore)(nil)
	_ repository.NotificationRepository = (*NotificationStore)(nil)
	_ repository.DirectoryRepository    = (*DirectoryStore)(nil)
	_ repository.AnnouncementRepository = (*AnnouncementStore)(nil)
)

// Optional text columns are NULL rather than '' so partial indexes and
// "IS NULL" checks behave.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt64(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// pgx encodes a nil slice as NULL, which breaks the NOT NULL array columns
// and turns ANY() into NULL.
func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilReactions(in []models.Reaction) []models.Reaction {
	if in == nil {
		return []models.Reaction{}
	}
	return in
}
