package chat

import (
	"context"
	"fmt"

	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/presence"
	"go.uber.org/zap"
)

// undelivered lists the messages userID has not received yet: direct messages
// addressed to them and traffic in the channels they currently belong to.
func (s *Service) undelivered(ctx context.Context, userID string) ([]models.Message, error) {
	channels, err := s.membership.ChannelsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve channels: %w", err)
	}
	msgs, err := s.messages.ListUndelivered(ctx, userID, channels)
	if err != nil {
		return nil, fmt.Errorf("list undelivered: %w", err)
	}
	return msgs, nil
}

// MissedMessages returns every message missed by userID, oldest first, and
// marks them all delivered in one batch. A second call returns nothing.
func (s *Service) MissedMessages(ctx context.Context, userID string) ([]models.Message, error) {
	msgs, err := s.undelivered(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	if _, err := s.messages.AddToSet(ctx, models.FieldDeliveredTo, messageIDs(msgs), []string{userID}); err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	return msgs, nil
}

// PushMissed sends the missed batch to conn in one missed_messages frame.
// Messages are only marked delivered once the frame was accepted, so a failed
// push leaves them for the next connect.
func (s *Service) PushMissed(ctx context.Context, conn presence.Conn, userID string) {
	msgs, err := s.undelivered(ctx, userID)
	if err != nil {
		s.logger.Error("compute missed messages", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}
	if !s.sendTo(conn, events.NewMissedMessages(msgs)) {
		return
	}

	changed, err := s.messages.AddToSet(ctx, models.FieldDeliveredTo, messageIDs(msgs), []string{userID})
	if err != nil {
		s.logger.Error("mark missed messages delivered", zap.String("user_id", userID), zap.Error(err))
		return
	}

	// Tell direct senders their message finally arrived.
	changedSet := toSet(changed)
	for _, m := range msgs {
		if _, ok := changedSet[m.ID]; ok && m.Kind == models.KindDirect && m.SenderID != userID {
			s.sendToUser(ctx, m.SenderID, events.NewDeliveryReceipt(m.ID, userID))
		}
	}
	s.logger.Info("pushed missed messages", zap.String("user_id", userID), zap.Int("count", len(msgs)))
}

// MarkRead adds userID to read_by for the given messages, or for the whole
// channel when no ids are given. The reader gets fresh unread counts and the
// senders of affected direct messages get a read receipt.
func (s *Service) MarkRead(ctx context.Context, userID string, ids []string, channelID string) error {
	switch {
	case len(ids) > 0:
		if err := s.markIDsRead(ctx, userID, ids); err != nil {
			return err
		}
	case channelID != "":
		ok, err := s.membership.IsMember(ctx, channelID, userID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, userID, channelID)
		}
		if _, err := s.messages.AddToSetInChannel(ctx, models.FieldReadBy, channelID, userID); err != nil {
			return fmt.Errorf("mark channel read: %w", err)
		}
	default:
		return fmt.Errorf("%w: nothing to mark read", ErrInvalidInput)
	}

	s.pushUnreadCounts(ctx, userID)
	return nil
}

func (s *Service) markIDsRead(ctx context.Context, userID string, ids []string) error {
	msgs, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	visible := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		ok, err := s.canView(ctx, userID, &m)
		if err != nil {
			return err
		}
		if ok {
			visible = append(visible, m)
		}
	}
	if len(visible) == 0 {
		return nil
	}

	changed, err := s.messages.AddToSet(ctx, models.FieldReadBy, messageIDs(visible), []string{userID})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	// Group newly read direct messages by their sender.
	changedSet := toSet(changed)
	bySender := make(map[string][]string)
	var order []string
	for _, m := range visible {
		if _, ok := changedSet[m.ID]; !ok || m.Kind != models.KindDirect || m.SenderID == userID {
			continue
		}
		if _, seen := bySender[m.SenderID]; !seen {
			order = append(order, m.SenderID)
		}
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}
	for _, sender := range order {
		s.sendToUser(ctx, sender, events.NewReadReceipt(bySender[sender], userID))
	}
	return nil
}

// UnreadCounts groups what userID has not read: direct messages by sender,
// channel messages by channel.
func (s *Service) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	channels, err := s.membership.ChannelsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve channels: %w", err)
	}
	counts, err := s.messages.CountUnread(ctx, userID, channels)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return counts, nil
}

func (s *Service) pushUnreadCounts(ctx context.Context, userID string) {
	online, err := s.registry.IsOnline(ctx, userID)
	if err != nil || !online {
		return
	}
	counts, err := s.UnreadCounts(ctx, userID)
	if err != nil {
		s.logger.Warn("unread counts", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.sendToUser(ctx, userID, events.NewUnreadCountUpdate(counts))
}

func messageIDs(msgs []models.Message) []string {
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	return ids
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
