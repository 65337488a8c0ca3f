package chat

import (
	"context"

	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/observ"
	"github.com/lalith-99/portalchat/internal/presence"
	"go.uber.org/zap"
)

// previewRunes caps the message excerpt stored in a notification.
const previewRunes = 100

// Notify writes a notification for recipientID if they have no open
// connection right now. Failures are logged; the message itself is already
// stored and will be replayed on reconnect.
func (s *Service) Notify(ctx context.Context, msg *models.Message, recipientID string) bool {
	online, err := s.registry.IsOnline(ctx, recipientID)
	if err != nil {
		s.logger.Warn("presence check failed", zap.String("user_id", recipientID), zap.Error(err))
	}
	if online {
		return false
	}

	n := &models.Notification{
		ID:             s.newID(),
		UserID:         recipientID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		MessageID:      msg.ID,
		MessageContent: preview(msg),
		Timestamp:      msg.Timestamp,
	}
	if msg.IsChannel() {
		n.Type = models.NotifyChannelMessage
		n.ChannelID = msg.ChannelID
	} else {
		n.Type = models.NotifyDirectMessage
		n.RecipientID = recipientID
	}

	return s.createNotification(ctx, n)
}

func (s *Service) createNotification(ctx context.Context, n *models.Notification) bool {
	if err := s.notifications.Create(ctx, n); err != nil {
		s.logger.Warn("create notification",
			zap.String("user_id", n.UserID),
			zap.String("message_id", n.MessageID),
			zap.Error(err),
		)
		return false
	}
	observ.NotificationsCreated.Inc()
	return true
}

func preview(msg *models.Message) string {
	content := msg.Content
	if content == "" && msg.FileName != "" {
		content = "Sent a file: " + msg.FileName
	}
	r := []rune(content)
	if len(r) > previewRunes {
		return string(r[:previewRunes]) + "..."
	}
	return content
}

// PushPending sends every unread notification to conn, oldest first, then
// marks the ones that went out as read in one batch.
func (s *Service) PushPending(ctx context.Context, conn presence.Conn, userID string) {
	pending, err := s.notifications.ListUnread(ctx, userID)
	if err != nil {
		s.logger.Error("list notifications", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	sent := make([]string, 0, len(pending))
	for _, n := range pending {
		if !s.sendTo(conn, events.NewNotification(n)) {
			break
		}
		sent = append(sent, n.ID)
	}
	if len(sent) == 0 {
		return
	}
	if err := s.notifications.MarkRead(ctx, sent); err != nil {
		s.logger.Error("mark notifications read", zap.String("user_id", userID), zap.Error(err))
	}
}
