// Package chat is the message core: routing, delivery tracking, offline
// notifications, reactions and deletions. It talks to the outside world only
// through the repository interfaces and the presence.Registry.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/observ"
	"github.com/lalith-99/portalchat/internal/presence"
	"github.com/lalith-99/portalchat/internal/repository"
	"go.uber.org/zap"
)

// Membership is the part of membership.Resolver the core needs.
type Membership interface {
	Members(ctx context.Context, channelID string) ([]string, error)
	ChannelsFor(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
}

type Deps struct {
	Messages      repository.MessageRepository
	Tombstones    repository.TombstoneRepository
	Notifications repository.NotificationRepository
	Directory     repository.DirectoryRepository
	Membership    Membership
	Registry      presence.Registry
	Logger        *zap.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

type Service struct {
	messages      repository.MessageRepository
	tombstones    repository.TombstoneRepository
	notifications repository.NotificationRepository
	directory     repository.DirectoryRepository
	membership    Membership
	registry      presence.Registry
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

func NewService(d Deps) *Service {
	s := &Service{
		messages:      d.Messages,
		tombstones:    d.Tombstones,
		notifications: d.Notifications,
		directory:     d.Directory,
		membership:    d.Membership,
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

// Connect registers a socket and pushes what the user missed to that socket
// only: undelivered messages first, then pending notifications.
func (s *Service) Connect(ctx context.Context, conn presence.Conn, userID string) {
	userID = models.NormalizeUserID(userID)
	if _, err := s.registry.Connect(ctx, conn, userID); err != nil {
		s.logger.Warn("registry connect failed", zap.String("user_id", userID), zap.Error(err))
	}
	s.PushMissed(ctx, conn, userID)
	s.PushPending(ctx, conn, userID)
}

// Disconnect unregisters a socket. The gateway calls it on every exit path.
func (s *Service) Disconnect(ctx context.Context, conn presence.Conn, userID string) {
	userID = models.NormalizeUserID(userID)
	last, err := s.registry.Disconnect(ctx, conn, userID)
	if err != nil {
		s.logger.Warn("status broadcast failed on disconnect", zap.String("user_id", userID), zap.Error(err))
	}
	s.logger.Debug("connection closed",
		zap.String("user_id", userID),
		zap.String("conn_id", conn.ID()),
		zap.Bool("last", last),
	)
}

// Handle processes one raw inbound frame from conn. Nothing it encounters
// ends the session: bad frames and failed operations are logged and dropped.
func (s *Service) Handle(ctx context.Context, conn presence.Conn, userID string, raw []byte) {
	userID = models.NormalizeUserID(userID)
	frame, err := DecodeFrame(raw)
	if err != nil {
		observ.FramesDropped.WithLabelValues("malformed").Inc()
		s.logger.Warn("dropping malformed frame", zap.String("user_id", userID), zap.Error(err))
		return
	}

	switch f := frame.(type) {
	case Ping, GetAllStatuses:
		return

	case SetStatus:
		if f.UserID != userID {
			observ.FramesDropped.WithLabelValues("forbidden").Inc()
			s.logger.Warn("set_status for another user",
				zap.String("user_id", userID),
				zap.String("target", f.UserID),
			)
			return
		}
		err = s.SetStatus(ctx, userID, f.Status)

	case ReactionUpdate:
		_, err = s.ApplyReaction(ctx, userID, f)

	case MarkRead:
		err = s.MarkRead(ctx, userID, f.MessageIDs, f.ChannelID)

	case SendMessage:
		var msg *models.Message
		msg, err = s.Route(ctx, userID, f)
		if err == nil {
			s.sendTo(conn, events.NewMessageConfirmation(f.OptimisticID, msg))
		}
	}

	if err != nil {
		reason := "failed"
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
			reason = "rejected"
		}
		observ.FramesDropped.WithLabelValues(reason).Inc()
		s.logger.Warn("frame not applied",
			zap.String("user_id", userID),
			zap.String("frame", frameName(frame)),
			zap.Error(err),
		)
	}
}

func frameName(f Frame) string {
	switch f.(type) {
	case SetStatus:
		return "set_status"
	case ReactionUpdate:
		return "reaction_update"
	case MarkRead:
		return "mark_messages_read"
	case SendMessage:
		return "message"
	}
	return "control"
}

// sendTo pushes ev on one connection, best effort.
func (s *Service) sendTo(conn presence.Conn, ev any) bool {
	payload, err := events.Encode(ev)
	if err != nil {
		s.logger.Error("encode event", zap.Error(err))
		return false
	}
	if err := conn.Send(payload); err != nil {
		observ.FanoutFailures.Inc()
		s.logger.Warn("send to connection failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		return false
	}
	return true
}

// sendToUser pushes ev to every connection of userID. Offline users are
// skipped silently; other failures are logged.
func (s *Service) sendToUser(ctx context.Context, userID string, ev any) bool {
	payload, err := events.Encode(ev)
	if err != nil {
		s.logger.Error("encode event", zap.Error(err))
		return false
	}
	return s.pushToUser(ctx, userID, payload)
}

func (s *Service) pushToUser(ctx context.Context, userID string, payload []byte) bool {
	err := s.registry.SendToUser(ctx, userID, payload)
	if err == nil {
		return true
	}
	if !errors.Is(err, presence.ErrUserOffline) {
		s.logger.Warn("send to user failed", zap.String("user_id", userID), zap.Error(err))
	}
	return false
}

// sendToAll pushes ev to each user in userIDs.
func (s *Service) sendToAll(ctx context.Context, userIDs []string, ev any) {
	payload, err := events.Encode(ev)
	if err != nil {
		s.logger.Error("encode event", zap.Error(err))
		return
	}
	for _, id := range userIDs {
		s.pushToUser(ctx, id, payload)
	}
}
