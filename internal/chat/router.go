package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/membership"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/observ"
	"github.com/lalith-99/portalchat/internal/presence"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// notifyConcurrency bounds parallel notification writes during a channel fan-out.
const notifyConcurrency = 8

// Route persists an inbound message and dispatches it. The returned message
// is the stored one; its id and timestamp go back to the sender as a
// message_confirmation.
func (s *Service) Route(ctx context.Context, senderID string, in SendMessage) (*models.Message, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:          s.newID(),
		SenderID:    senderID,
		SenderName:  s.senderName(ctx, senderID, in.SenderName),
		Content:     in.Content,
		Timestamp:   s.now().UTC(),
		FileName:    in.FileName,
		FileType:    in.FileType,
		FileSize:    in.FileSize,
		FileURL:     in.FileURL,
		Reactions:   []models.Reaction{},
		DeliveredTo: []string{senderID},
		ReadBy:      []string{senderID},
	}

	channelID, recipients, err := classify(in)
	if err != nil {
		return nil, err
	}
	if channelID != "" {
		ok, err := s.membership.IsMember(ctx, channelID, senderID)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, senderID, channelID)
		}
		msg.Kind = models.KindChannel
		msg.ChannelID = channelID
	} else {
		msg.Kind = models.KindDirect
		msg.RecipientID = recipients
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	observ.MessagesRouted.WithLabelValues(string(msg.Kind)).Inc()

	if msg.IsChannel() {
		s.dispatchChannel(ctx, msg)
	} else {
		s.dispatchDirect(ctx, msg)
	}
	return msg, nil
}

// classify decides between a channel and a direct message. An explicit
// channel_id wins; a single recipient that names a channel is treated as one.
func classify(in SendMessage) (string, models.Recipients, error) {
	if in.ChannelID != "" {
		if !membership.IsChannelID(in.ChannelID) {
			return "", nil, fmt.Errorf("%w: %q is not a channel", ErrInvalidInput, in.ChannelID)
		}
		return in.ChannelID, nil, nil
	}
	if len(in.RecipientID) == 1 && membership.IsChannelID(in.RecipientID[0]) {
		return in.RecipientID[0], nil, nil
	}

	seen := make(map[string]struct{}, len(in.RecipientID))
	recipients := make(models.Recipients, 0, len(in.RecipientID))
	for _, r := range in.RecipientID {
		r = strings.TrimSpace(r)
		if r == "" || membership.IsChannelID(r) {
			return "", nil, fmt.Errorf("%w: unroutable recipient %q", ErrInvalidInput, r)
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		recipients = append(recipients, r)
	}
	if len(recipients) == 0 {
		return "", nil, fmt.Errorf("%w: no recipients", ErrInvalidInput)
	}
	return "", recipients, nil
}

// senderName prefers the directory over whatever the client claimed.
func (s *Service) senderName(ctx context.Context, senderID, claimed string) string {
	e, err := s.directory.GetEmployee(ctx, senderID)
	if err != nil {
		s.logger.Warn("directory lookup failed", zap.String("user_id", senderID), zap.Error(err))
	}
	if e != nil && e.Name != "" {
		return e.Name
	}
	if claimed != "" {
		return claimed
	}
	return senderID
}

// dispatchChannel delivers to every member but the sender, records who got
// it live, and writes notifications for the rest in parallel.
func (s *Service) dispatchChannel(ctx context.Context, msg *models.Message) {
	members, err := s.membership.Members(ctx, msg.ChannelID)
	if err != nil {
		s.logger.Error("resolve channel members",
			zap.String("channel_id", msg.ChannelID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}
	payload, err := events.Encode(events.NewChatMessage(msg))
	if err != nil {
		s.logger.Error("encode message", zap.Error(err))
		return
	}

	var online, offline []string
	for _, m := range members {
		if m == msg.SenderID {
			continue
		}
		if s.pushToUser(ctx, m, payload) {
			online = append(online, m)
		} else {
			offline = append(offline, m)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(notifyConcurrency)
	for _, m := range offline {
		g.Go(func() error {
			s.Notify(gctx, msg, m)
			return nil
		})
	}

	if len(online) > 0 {
		if _, err := s.messages.AddToSet(ctx, models.FieldDeliveredTo, []string{msg.ID}, online); err != nil {
			s.logger.Warn("mark channel message delivered", zap.String("message_id", msg.ID), zap.Error(err))
		}
		for _, m := range online {
			s.pushUnreadCounts(ctx, m)
		}
	}
	_ = g.Wait()

	s.logger.Debug("channel message dispatched",
		zap.String("message_id", msg.ID),
		zap.String("channel_id", msg.ChannelID),
		zap.Int("online", len(online)),
		zap.Int("offline", len(offline)),
	)
}

// dispatchDirect delivers to each recipient. A recipient reached live is
// added to delivered_to and the sender gets a delivery receipt; everyone else
// gets a notification.
func (s *Service) dispatchDirect(ctx context.Context, msg *models.Message) {
	payload, err := events.Encode(events.NewChatMessage(msg))
	if err != nil {
		s.logger.Error("encode message", zap.Error(err))
		return
	}

	for _, r := range msg.RecipientID {
		if r == msg.SenderID {
			continue
		}
		err := s.registry.SendToUser(ctx, r, payload)
		switch {
		case err == nil:
			s.markDelivered(ctx, msg, r)
		case errors.Is(err, presence.ErrUserOffline):
			s.Notify(ctx, msg, r)
		default:
			s.logger.Warn("direct delivery failed", zap.String("recipient_id", r), zap.Error(err))
			s.Notify(ctx, msg, r)
		}
		s.pushUnreadCounts(ctx, r)
	}
}

func (s *Service) markDelivered(ctx context.Context, msg *models.Message, recipientID string) {
	changed, err := s.messages.AddToSet(ctx, models.FieldDeliveredTo, []string{msg.ID}, []string{recipientID})
	if err != nil {
		s.logger.Warn("mark direct message delivered", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if len(changed) > 0 {
		s.sendToUser(ctx, msg.SenderID, events.NewDeliveryReceipt(msg.ID, recipientID))
	}
}
