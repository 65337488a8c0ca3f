package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Employee is the slice of the HR directory the chat core reads.
//
// The directory is owned by the portal, not by us. ID is the user identifier
// used everywhere on the socket (the employee's email in practice).
type Employee struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Team       string `json:"team"`
}

// NormalizeUserID is the canonical form of a user id. Ids are emails typed
// in whatever case, so every id entering the core passes through here and
// is compared exactly afterwards.
func NormalizeUserID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Status is a user's presence flag.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy:
		return true
	}
	return false
}

// UserPresence is what status listings and status_update events carry.
type UserPresence struct {
	UserID string `json:"user_id"`
	Status Status `json:"status"`
}

// ChannelType classifies a derived channel.
type ChannelType string

const (
	ChannelPublic     ChannelType = "public"
	ChannelDepartment ChannelType = "department"
	ChannelTeam       ChannelType = "team"
)

// Channel is a virtual group. There is no channels table: every channel is
// computed from the directory on demand.
type Channel struct {
	ID          string      `json:"id"`
	Type        ChannelType `json:"type"`
	Department  string      `json:"department,omitempty"`
	Team        string      `json:"team,omitempty"`
	Description string      `json:"description"`
	MemberCount int         `json:"member_count"`
}

// MessageKind separates direct and channel traffic.
type MessageKind string

const (
	KindDirect  MessageKind = "direct"
	KindChannel MessageKind = "channel"
)

// Reaction is a (user, type) pair attached to a message.
type Reaction struct {
	UserID       string `json:"user_id"`
	ReactionType string `json:"reaction_type"`
}

// Recipients holds the addressees of a direct message.
//
// On the wire it is a plain string for a single recipient and an array for
// group fan-out, which is what clients have always sent.
type Recipients []string

func (r Recipients) MarshalJSON() ([]byte, error) {
	switch len(r) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

func (r *Recipients) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*r = nil
		} else {
			*r = Recipients{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipient_id must be a string or a list of strings")
	}
	*r = Recipients(many)
	return nil
}

// Normalized returns r with every id in canonical form.
func (r Recipients) Normalized() Recipients {
	if r == nil {
		return nil
	}
	out := make(Recipients, len(r))
	for i, id := range r {
		out[i] = NormalizeUserID(id)
	}
	return out
}

// Contains reports whether userID is one of the recipients.
func (r Recipients) Contains(userID string) bool {
	for _, id := range r {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is a persisted chat message.
//
// DeliveredTo and ReadBy are sets. They only ever grow, and only through the
// store's AddToSet primitive.
type Message struct {
	ID          string      `json:"id"`
	Kind        MessageKind `json:"kind"`
	SenderID    string      `json:"sender_id"`
	SenderName  string      `json:"sender_name"`
	Content     string      `json:"content"`
	Timestamp   time.Time   `json:"timestamp"`
	ChannelID   string      `json:"channel_id,omitempty"`
	RecipientID Recipients  `json:"recipient_id,omitempty"`

	FileName string `json:"file_name,omitempty"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	FileURL  string `json:"file_url,omitempty"`

	Reactions   []Reaction `json:"reactions"`
	DeliveredTo []string   `json:"delivered_to"`
	ReadBy      []string   `json:"read_by"`

	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsChannel is shorthand for Kind == KindChannel.
func (m *Message) IsChannel() bool {
	return m.Kind == KindChannel
}

// Participants returns the sender plus every recipient of a direct message.
func (m *Message) Participants() []string {
	out := make([]string, 0, len(m.RecipientID)+1)
	out = append(out, m.SenderID)
	for _, r := range m.RecipientID {
		if r != m.SenderID {
			out = append(out, r)
		}
	}
	return out
}

// SetField names one of the two acknowledgement sets on a message.
type SetField string

const (
	FieldDeliveredTo SetField = "delivered_to"
	FieldReadBy      SetField = "read_by"
)

// Tombstone hides one message from one user ("delete for me").
type Tombstone struct {
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationType tells the client what produced the notification.
type NotificationType string

const (
	NotifyDirectMessage  NotificationType = "direct_message"
	NotifyChannelMessage NotificationType = "channel_message"
	NotifyAnnouncement   NotificationType = "announcement"
)

// Notification is the lightweight offline-delivery record.
type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	SenderID       string           `json:"sender_id"`
	SenderName     string           `json:"sender_name"`
	MessageID      string           `json:"message_id"`
	MessageContent string           `json:"message_content"`
	ChannelID      string           `json:"channel_id,omitempty"`
	RecipientID    string           `json:"recipient_id,omitempty"`
	Type           NotificationType `json:"type"`
	Timestamp      time.Time        `json:"timestamp"`
	IsRead         bool             `json:"is_read"`
}

// AnnouncementStatus is either published or scheduled.
type AnnouncementStatus string

const (
	AnnouncementPublished AnnouncementStatus = "published"
	AnnouncementScheduled AnnouncementStatus = "scheduled"
)

// Announcement is an organization-wide post from an administrator.
type Announcement struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	Priority    string             `json:"priority"`
	Author      string             `json:"author"`
	Date        time.Time          `json:"date"`
	Status      AnnouncementStatus `json:"status"`
	ScheduledAt *time.Time         `json:"scheduled_at,omitempty"`
}
