package chat

import (
	"context"
	"fmt"

	"github.com/lalith-99/portalchat/internal/membership"
	"github.com/lalith-99/portalchat/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

func pageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// canView is the authorization half of visibility: a channel message needs
// current membership, a direct message needs the viewer to be a participant.
func (s *Service) canView(ctx context.Context, userID string, msg *models.Message) (bool, error) {
	if msg.IsChannel() {
		ok, err := s.membership.IsMember(ctx, msg.ChannelID, userID)
		if err != nil {
			return false, fmt.Errorf("check membership: %w", err)
		}
		return ok, nil
	}
	for _, p := range msg.Participants() {
		if p == userID {
			return true, nil
		}
	}
	return false, nil
}

// authorizedMessage loads a message userID is allowed to see, tombstoned or
// not. Unauthorized messages look exactly like missing ones.
func (s *Service) authorizedMessage(ctx context.Context, userID, messageID string) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	ok, err := s.canView(ctx, userID, msg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return msg, nil
}

// visibleMessage is authorizedMessage plus the tombstone filter.
func (s *Service) visibleMessage(ctx context.Context, userID, messageID string) (*models.Message, error) {
	msg, err := s.authorizedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	hidden, err := s.tombstones.IsHidden(ctx, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("check tombstone: %w", err)
	}
	if hidden {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	return msg, nil
}

// audience lists the users who currently see msg.
func (s *Service) audience(ctx context.Context, msg *models.Message) ([]string, error) {
	if msg.IsChannel() {
		members, err := s.membership.Members(ctx, msg.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("resolve channel members: %w", err)
		}
		return members, nil
	}
	return msg.Participants(), nil
}

// GetMessage returns one message if userID may see it.
func (s *Service) GetMessage(ctx context.Context, userID, messageID string) (*models.Message, error) {
	return s.visibleMessage(ctx, userID, messageID)
}

// ChannelMessages returns the latest messages of a channel, oldest first,
// without the ones userID hid.
func (s *Service) ChannelMessages(ctx context.Context, userID, channelID string, limit int) ([]models.Message, error) {
	if !membership.IsChannelID(channelID) {
		return nil, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	ok, err := s.membership.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, userID, channelID)
	}
	msgs, err := s.messages.ListChannel(ctx, channelID, userID, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	return msgs, nil
}

// DirectMessages returns the latest messages between userID and partnerID.
func (s *Service) DirectMessages(ctx context.Context, userID, partnerID string, limit int) ([]models.Message, error) {
	if partnerID == "" || membership.IsChannelID(partnerID) {
		return nil, fmt.Errorf("%w: %q is not a user", ErrInvalidInput, partnerID)
	}
	msgs, err := s.messages.ListDirect(ctx, userID, partnerID, userID, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return msgs, nil
}

// SetStatus stores an explicit presence status and broadcasts it.
func (s *Service) SetStatus(ctx context.Context, userID string, status models.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	if err := s.registry.SetStatus(ctx, userID, status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// Statuses lists every directory user with their derived status.
func (s *Service) Statuses(ctx context.Context) ([]models.UserPresence, error) {
	employees, err := s.directory.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	known, err := s.registry.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	byUser := make(map[string]models.Status, len(known))
	for _, p := range known {
		byUser[p.UserID] = p.Status
	}

	out := make([]models.UserPresence, 0, len(employees))
	for _, e := range employees {
		status, ok := byUser[e.ID]
		if !ok {
			status = models.StatusOffline
		}
		out = append(out, models.UserPresence{UserID: e.ID, Status: status})
	}
	return out, nil
}
