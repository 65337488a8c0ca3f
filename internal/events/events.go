// Package events defines the frames pushed to clients over the socket.
//
// Every frame is a flat JSON object with a "type" discriminator. The
// constructors below set Type, so callers never spell the strings.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lalith-99/portalchat/internal/models"
)

const (
	TypeStatusUpdate        = "status_update"
	TypeMissedMessages      = "missed_messages"
	TypeNotification        = "notification"
	TypeMessageConfirmation = "message_confirmation"
	TypeDeliveryReceipt     = "delivery_receipt"
	TypeReadReceipt         = "read_receipt"
	TypeReactionUpdate      = "reaction_update"
	TypeMessageUpdate       = "message_update"
	TypeMessageHidden       = "message_hidden"
	TypeUnreadCountUpdate   = "unread_count_update"
	TypeChannelMessage      = "channel_message"
	TypeDirectMessage       = "direct_message"
	TypeNewAnnouncement     = "new_announcement"
)

// Encode marshals an event for the wire.
func Encode(ev any) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

type StatusUpdate struct {
	Type   string        `json:"type"`
	UserID string        `json:"user_id"`
	Status models.Status `json:"status"`
}

func NewStatusUpdate(userID string, status models.Status) StatusUpdate {
	return StatusUpdate{Type: TypeStatusUpdate, UserID: userID, Status: status}
}

type MissedMessages struct {
	Type     string           `json:"type"`
	Messages []models.Message `json:"messages"`
}

func NewMissedMessages(msgs []models.Message) MissedMessages {
	return MissedMessages{Type: TypeMissedMessages, Messages: msgs}
}

type Notification struct {
	Type         string              `json:"type"`
	Notification models.Notification `json:"notification"`
}

func NewNotification(n models.Notification) Notification {
	return Notification{Type: TypeNotification, Notification: n}
}

// MessageConfirmation maps the client's temporary id to the stored one.
type MessageConfirmation struct {
	Type         string    `json:"type"`
	OptimisticID string    `json:"optimistic_id,omitempty"`
	FinalID      string    `json:"final_id"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewMessageConfirmation(optimisticID string, msg *models.Message) MessageConfirmation {
	return MessageConfirmation{
		Type:         TypeMessageConfirmation,
		OptimisticID: optimisticID,
		FinalID:      msg.ID,
		Timestamp:    msg.Timestamp,
	}
}

type DeliveryReceipt struct {
	Type        string `json:"type"`
	MessageID   string `json:"message_id"`
	DeliveredTo string `json:"delivered_to"`
}

func NewDeliveryReceipt(messageID, deliveredTo string) DeliveryReceipt {
	return DeliveryReceipt{Type: TypeDeliveryReceipt, MessageID: messageID, DeliveredTo: deliveredTo}
}

type ReadReceipt struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"message_ids"`
	ReadBy     string   `json:"read_by"`
}

func NewReadReceipt(messageIDs []string, readBy string) ReadReceipt {
	return ReadReceipt{Type: TypeReadReceipt, MessageIDs: messageIDs, ReadBy: readBy}
}

// ReactionUpdate always carries the full reaction list.
type ReactionUpdate struct {
	Type      string            `json:"type"`
	MessageID string            `json:"message_id"`
	Reactions []models.Reaction `json:"reactions"`
	UpdatedBy string            `json:"updated_by"`
}

func NewReactionUpdate(messageID string, reactions []models.Reaction, updatedBy string) ReactionUpdate {
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	return ReactionUpdate{Type: TypeReactionUpdate, MessageID: messageID, Reactions: reactions, UpdatedBy: updatedBy}
}

type MessageUpdate struct {
	Type      string         `json:"type"`
	MessageID string         `json:"message_id"`
	Updates   MessageChanges `json:"updates"`
}

type MessageChanges struct {
	Content string `json:"content"`
	Deleted bool   `json:"deleted"`
}

func NewMessageUpdate(messageID, content string, deleted bool) MessageUpdate {
	return MessageUpdate{
		Type:      TypeMessageUpdate,
		MessageID: messageID,
		Updates:   MessageChanges{Content: content, Deleted: deleted},
	}
}

// MessageHidden tells a user's other devices that messages were hidden for them.
type MessageHidden struct {
	Type       string   `json:"type"`
	MessageIDs []string `json:"message_ids"`
	UserID     string   `json:"user_id"`
}

func NewMessageHidden(userID string, messageIDs []string) MessageHidden {
	return MessageHidden{Type: TypeMessageHidden, MessageIDs: messageIDs, UserID: userID}
}

type UnreadCountUpdate struct {
	Type   string         `json:"type"`
	Counts map[string]int `json:"counts"`
}

func NewUnreadCountUpdate(counts map[string]int) UnreadCountUpdate {
	if counts == nil {
		counts = map[string]int{}
	}
	return UnreadCountUpdate{Type: TypeUnreadCountUpdate, Counts: counts}
}

// ChatMessage is a live message push. The message fields are inlined.
type ChatMessage struct {
	Type string `json:"type"`
	models.Message
}

func NewChatMessage(msg *models.Message) ChatMessage {
	t := TypeDirectMessage
	if msg.IsChannel() {
		t = TypeChannelMessage
	}
	return ChatMessage{Type: t, Message: *msg}
}

type NewAnnouncement struct {
	Type         string              `json:"type"`
	Announcement models.Announcement `json:"announcement"`
}

func NewNewAnnouncement(a models.Announcement) NewAnnouncement {
	return NewAnnouncement{Type: TypeNewAnnouncement, Announcement: a}
}
