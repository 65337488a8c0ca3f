package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"go.uber.org/zap"
)

const (
	// DeletedPlaceholder replaces the content of a message deleted for everyone.
	DeletedPlaceholder = "This message was deleted"

	// optimisticPrefix marks ids the client made up for messages still in flight.
	optimisticPrefix = "optimistic-"
)

// DeleteForMe hides one message from userID only. Repeating it is a no-op.
func (s *Service) DeleteForMe(ctx context.Context, userID, messageID string) error {
	msg, err := s.authorizedMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	return s.hide(ctx, userID, []string{msg.ID})
}

// ClearChannel hides every message of a channel from userID.
func (s *Service) ClearChannel(ctx context.Context, userID, channelID string) (int, error) {
	ok, err := s.membership.IsMember(ctx, channelID, userID)
	if err != nil {
		return 0, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, userID, channelID)
	}
	ids, err := s.messages.MessageIDsInChannel(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("list channel messages: %w", err)
	}
	return len(ids), s.hide(ctx, userID, ids)
}

// ClearConversation hides the direct conversation with partnerID from userID.
func (s *Service) ClearConversation(ctx context.Context, userID, partnerID string) (int, error) {
	ids, err := s.messages.MessageIDsBetween(ctx, userID, partnerID)
	if err != nil {
		return 0, fmt.Errorf("list conversation: %w", err)
	}
	return len(ids), s.hide(ctx, userID, ids)
}

func (s *Service) hide(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.tombstones.Hide(ctx, userID, ids, s.now().UTC()); err != nil {
		return fmt.Errorf("hide messages: %w", err)
	}
	s.sendToUser(ctx, userID, events.NewMessageHidden(userID, ids))
	return nil
}

// DeleteForEveryone redacts a message the caller sent and pushes the new
// content to everyone who can see it.
func (s *Service) DeleteForEveryone(ctx context.Context, userID, messageID string) (*models.Message, error) {
	if strings.HasPrefix(messageID, optimisticPrefix) {
		return nil, fmt.Errorf("%w: message %s has not been stored yet", ErrNotFound, messageID)
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if msg.SenderID != userID {
		return nil, fmt.Errorf("%w: only the sender can delete %s for everyone", ErrForbidden, messageID)
	}
	if msg.Deleted {
		return msg, nil
	}

	at := s.now().UTC()
	found, err := s.messages.Redact(ctx, messageID, DeletedPlaceholder, at)
	if err != nil {
		return nil, fmt.Errorf("redact message: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	msg.Content = DeletedPlaceholder
	msg.Deleted = true
	msg.DeletedAt = &at

	audience, err := s.audience(ctx, msg)
	if err != nil {
		s.logger.Warn("resolve audience for redaction", zap.String("message_id", messageID), zap.Error(err))
		return msg, nil
	}
	s.sendToAll(ctx, audience, events.NewMessageUpdate(messageID, DeletedPlaceholder, true))
	return msg, nil
}

// PermanentDelete removes the row. Only administrators may call it.
func (s *Service) PermanentDelete(ctx context.Context, admin bool, messageID string) error {
	if !admin {
		return fmt.Errorf("%w: permanent delete needs an administrator", ErrForbidden)
	}
	found, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	s.logger.Info("message permanently deleted", zap.String("message_id", messageID))
	return nil
}
