// Package announcements publishes organization-wide posts, either at once or
// at a scheduled time.
package announcements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/portalchat/internal/chat"
	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/observ"
	"github.com/lalith-99/portalchat/internal/presence"
	"github.com/lalith-99/portalchat/internal/repository"
	"go.uber.org/zap"
)

const DefaultPriority = "medium"

var priorities = map[string]bool{"low": true, "medium": true, "high": true}

// Author is the administrator posting an announcement.
type Author struct {
	ID   string
	Name string
}

type CreateInput struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Priority    string     `json:"priority"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type Deps struct {
	Announcements repository.AnnouncementRepository
	Notifications repository.NotificationRepository
	Directory     repository.DirectoryRepository
	Registry      presence.Registry
	Logger        *zap.Logger
	Now           func() time.Time
	NewID         func() string
}

type Service struct {
	announcements repository.AnnouncementRepository
	notifications repository.NotificationRepository
	directory     repository.DirectoryRepository
	registry      presence.Registry
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

func NewService(d Deps) *Service {
	s := &Service{
		announcements: d.Announcements,
		notifications: d.Notifications,
		directory:     d.Directory,
		registry:      d.Registry,
		logger:        d.Logger,
		now:           d.Now,
		newID:         d.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Create stores an announcement. A scheduled_at in the future leaves it
// scheduled for the poller; anything else publishes immediately.
func (s *Service) Create(ctx context.Context, author Author, in CreateInput) (*models.Announcement, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return nil, fmt.Errorf("%w: title and content are required", chat.ErrInvalidInput)
	}
	priority := strings.ToLower(strings.TrimSpace(in.Priority))
	if priority == "" {
		priority = DefaultPriority
	}
	if !priorities[priority] {
		return nil, fmt.Errorf("%w: unknown priority %q", chat.ErrInvalidInput, in.Priority)
	}

	name := author.Name
	if name == "" {
		name = "Admin"
	}
	now := s.now().UTC()
	a := &models.Announcement{
		ID:       s.newID(),
		Title:    title,
		Content:  content,
		Priority: priority,
		Author:   name,
		Date:     now,
		Status:   models.AnnouncementPublished,
	}
	if in.ScheduledAt != nil && in.ScheduledAt.After(now) {
		at := in.ScheduledAt.UTC()
		a.Status = models.AnnouncementScheduled
		a.ScheduledAt = &at
	}

	if err := s.announcements.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create announcement: %w", err)
	}

	if a.Status == models.AnnouncementScheduled {
		s.logger.Info("announcement scheduled",
			zap.String("announcement_id", a.ID),
			zap.String("author", author.ID),
			zap.Time("scheduled_at", *a.ScheduledAt),
		)
		return a, nil
	}

	s.logger.Info("announcement published",
		zap.String("announcement_id", a.ID),
		zap.String("author", author.ID),
	)
	s.publish(ctx, *a, author.ID)
	return a, nil
}

// List returns published announcements, newest first.
func (s *Service) List(ctx context.Context) ([]models.Announcement, error) {
	list, err := s.announcements.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return list, nil
}

// PublishDue flips every due scheduled announcement to published and
// announces it. Returns how many this call published.
func (s *Service) PublishDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.announcements.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due announcements: %w", err)
	}

	published := 0
	for _, a := range due {
		ok, err := s.announcements.MarkPublished(ctx, a.ID, now)
		if err != nil {
			return published, fmt.Errorf("publish announcement %s: %w", a.ID, err)
		}
		if !ok {
			continue
		}
		a.Status = models.AnnouncementPublished
		a.Date = now
		s.logger.Info("scheduled announcement published", zap.String("announcement_id", a.ID))
		s.publish(ctx, a, "")
		published++
	}
	return published, nil
}

// Run calls PublishDue every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PublishDue(ctx); err != nil {
				s.logger.Error("publish scheduled announcements", zap.Error(err))
			}
		}
	}
}

// publish notifies offline employees, then broadcasts to every live socket.
// Failures here are logged; the announcement is already stored.
func (s *Service) publish(ctx context.Context, a models.Announcement, authorID string) {
	s.notifyOffline(ctx, a, authorID)

	payload, err := events.Encode(events.NewNewAnnouncement(a))
	if err != nil {
		s.logger.Error("encode announcement", zap.Error(err))
		return
	}
	if err := s.registry.Broadcast(ctx, payload, ""); err != nil {
		s.logger.Warn("broadcast announcement", zap.String("announcement_id", a.ID), zap.Error(err))
	}
}

func (s *Service) notifyOffline(ctx context.Context, a models.Announcement, authorID string) {
	employees, err := s.directory.ListEmployees(ctx)
	if err != nil {
		s.logger.Warn("list employees for announcement", zap.Error(err))
		return
	}

	created := 0
	for _, e := range employees {
		if e.ID == authorID {
			continue
		}
		online, err := s.registry.IsOnline(ctx, e.ID)
		if err != nil {
			s.logger.Warn("presence lookup", zap.String("user_id", e.ID), zap.Error(err))
			continue
		}
		if online {
			continue
		}
		n := &models.Notification{
			ID:             s.newID(),
			UserID:         e.ID,
			SenderID:       authorID,
			SenderName:     a.Author,
			MessageID:      a.ID,
			MessageContent: a.Title,
			Type:           models.NotifyAnnouncement,
			Timestamp:      a.Date,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.logger.Warn("create announcement notification", zap.String("user_id", e.ID), zap.Error(err))
			continue
		}
		observ.NotificationsCreated.Inc()
		created++
	}
	s.logger.Debug("announcement notifications created",
		zap.String("announcement_id", a.ID),
		zap.Int("count", created),
	)
}
