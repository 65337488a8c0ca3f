package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lalith-99/portalchat/internal/models"
)

// Frame is one decoded inbound socket frame. DecodeFrame returns exactly one
// of the variants below and the service switches on the concrete type.
type Frame interface {
	frame()
}

type Ping struct{}

type GetAllStatuses struct{}

type SetStatus struct {
	UserID string
	Status models.Status
}

type ReactionAction string

const (
	ReactionAdd     ReactionAction = "add"
	ReactionRemove  ReactionAction = "remove"
	ReactionReplace ReactionAction = "replace"
)

type ReactionUpdate struct {
	MessageID       string
	ReactionType    string
	Action          ReactionAction
	OldReactionType string
}

// MarkRead acknowledges either explicit message ids or a whole channel.
type MarkRead struct {
	MessageIDs []string
	ChannelID  string
}

// SendMessage is a chat message on its way in. OptimisticID is the id the
// client assigned before the server saw it.
type SendMessage struct {
	OptimisticID string
	SenderName   string
	Content      string
	ChannelID    string
	RecipientID  models.Recipients

	FileName string
	FileType string
	FileSize int64
	FileURL  string
}

func (Ping) frame()           {}
func (GetAllStatuses) frame() {}
func (SetStatus) frame()      {}
func (ReactionUpdate) frame() {}
func (MarkRead) frame()       {}
func (SendMessage) frame()    {}

// wireFrame is the union of every inbound field.
type wireFrame struct {
	Type string `json:"type"`

	UserID string `json:"user_id"`
	Status string `json:"status"`

	MessageID       string   `json:"message_id"`
	ReactionType    string   `json:"reaction_type"`
	Action          string   `json:"action"`
	OldReactionType string   `json:"old_reaction_type"`
	MessageIDs      []string `json:"message_ids"`

	ID          string            `json:"id"`
	SenderName  string            `json:"sender_name"`
	Content     string            `json:"content"`
	ChannelID   string            `json:"channel_id"`
	RecipientID models.Recipients `json:"recipient_id"`
	FileName    string            `json:"file_name"`
	FileType    string            `json:"file_type"`
	FileSize    int64             `json:"file_size"`
	FileURL     string            `json:"file_url"`
}

// DecodeFrame parses and validates one inbound frame. Frames without a
// recognised control type are chat messages.
func DecodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch w.Type {
	case "ping":
		return Ping{}, nil

	case "get_all_statuses":
		return GetAllStatuses{}, nil

	case "set_status":
		status := models.Status(w.Status)
		if w.UserID == "" || !status.Valid() {
			return nil, fmt.Errorf("%w: set_status needs user_id and a valid status", ErrInvalidInput)
		}
		return SetStatus{UserID: models.NormalizeUserID(w.UserID), Status: status}, nil

	case "reaction_update":
		f := ReactionUpdate{
			MessageID:       w.MessageID,
			ReactionType:    w.ReactionType,
			Action:          ReactionAction(w.Action),
			OldReactionType: w.OldReactionType,
		}
		if err := f.validate(); err != nil {
			return nil, err
		}
		return f, nil

	case "mark_messages_read":
		if len(w.MessageIDs) == 0 && w.ChannelID == "" {
			return nil, fmt.Errorf("%w: mark_messages_read needs message_ids or channel_id", ErrInvalidInput)
		}
		return MarkRead{MessageIDs: w.MessageIDs, ChannelID: w.ChannelID}, nil
	}

	f := SendMessage{
		OptimisticID: w.ID,
		SenderName:   w.SenderName,
		Content:      w.Content,
		ChannelID:    w.ChannelID,
		RecipientID:  w.RecipientID.Normalized(),
		FileName:     w.FileName,
		FileType:     w.FileType,
		FileSize:     w.FileSize,
		FileURL:      w.FileURL,
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f ReactionUpdate) validate() error {
	if f.MessageID == "" || f.ReactionType == "" {
		return fmt.Errorf("%w: reaction_update needs message_id and reaction_type", ErrInvalidInput)
	}
	switch f.Action {
	case ReactionAdd, ReactionRemove:
		return nil
	case ReactionReplace:
		if f.OldReactionType == "" {
			return fmt.Errorf("%w: replace needs old_reaction_type", ErrInvalidInput)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown reaction action %q", ErrInvalidInput, f.Action)
}

func (f SendMessage) validate() error {
	if strings.TrimSpace(f.Content) == "" && f.FileURL == "" {
		return fmt.Errorf("%w: message needs content or a file", ErrInvalidInput)
	}
	if f.ChannelID == "" && len(f.RecipientID) == 0 {
		return fmt.Errorf("%w: message needs channel_id or recipient_id", ErrInvalidInput)
	}
	return nil
}
