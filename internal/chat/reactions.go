package chat

import (
	"context"
	"fmt"

	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
)

// ApplyReaction mutates the reaction list of a message and broadcasts the
// whole resulting list to everyone who can see the message.
func (s *Service) ApplyReaction(ctx context.Context, userID string, f ReactionUpdate) ([]models.Reaction, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	msg, err := s.messages.GetByID(ctx, f.MessageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, f.MessageID)
	}
	ok, err := s.canView(ctx, userID, msg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: cannot react to message %s", ErrForbidden, f.MessageID)
	}

	reactions, err := s.messages.UpdateReactions(ctx, f.MessageID, func(current []models.Reaction) []models.Reaction {
		return mutateReactions(current, userID, f)
	})
	if err != nil {
		return nil, fmt.Errorf("update reactions: %w", err)
	}
	if reactions == nil {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, f.MessageID)
	}

	audience, err := s.audience(ctx, msg)
	if err != nil {
		return reactions, err
	}
	s.sendToAll(ctx, audience, events.NewReactionUpdate(msg.ID, reactions, userID))
	return reactions, nil
}

// mutateReactions is the pure reaction rule. add and remove are idempotent;
// replace removes the old pair and then adds the new one.
func mutateReactions(current []models.Reaction, userID string, f ReactionUpdate) []models.Reaction {
	switch f.Action {
	case ReactionAdd:
		return addReaction(current, userID, f.ReactionType)
	case ReactionRemove:
		return removeReaction(current, userID, f.ReactionType)
	case ReactionReplace:
		return addReaction(removeReaction(current, userID, f.OldReactionType), userID, f.ReactionType)
	}
	return current
}

func addReaction(list []models.Reaction, userID, reactionType string) []models.Reaction {
	for _, r := range list {
		if r.UserID == userID && r.ReactionType == reactionType {
			return list
		}
	}
	return append(list, models.Reaction{UserID: userID, ReactionType: reactionType})
}

func removeReaction(list []models.Reaction, userID, reactionType string) []models.Reaction {
	out := make([]models.Reaction, 0, len(list))
	for _, r := range list {
		if r.UserID == userID && r.ReactionType == reactionType {
			continue
		}
		out = append(out, r)
	}
	return out
}
