// Package memory is an in-process implementation of every repository
// interface. It backs the test suites and STORE_BACKEND=memory for local runs;
// nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/repository"
)

var (
	_ repository.MessageRepository      = (*MessageStore)(nil)
	_ repository.TombstoneRepository    = (*TombstoneStore)(nil)
	_ repository.NotificationRepository = (*NotificationStore)(nil)
	_ repository.DirectoryRepository    = (*DirectoryStore)(nil)
	_ repository.AnnouncementRepository = (*AnnouncementStore)(nil)
)

type tombstoneKey struct {
	userID    string
	messageID string
}

type storedMessage struct {
	seq int64
	msg models.Message
}

// state is shared by every store so listings can see tombstones, the way
// the SQL queries join deleted_messages.
type state struct {
	mu sync.Mutex

	seq           int64
	messages      map[string]*storedMessage
	tombstones    map[tombstoneKey]time.Time
	notifications []models.Notification
	employees     []models.Employee
	announcements []models.Announcement
}

// Store bundles one instance of each repository over shared state.
type Store struct {
	Messages      *MessageStore
	Tombstones    *TombstoneStore
	Notifications *NotificationStore
	Directory     *DirectoryStore
	Announcements *AnnouncementStore
}

// New returns an empty store seeded with the given directory.
func New(employees ...models.Employee) *Store {
	st := &state{
		messages:   make(map[string]*storedMessage),
		tombstones: make(map[tombstoneKey]time.Time),
		employees:  make([]models.Employee, 0, len(employees)),
	}
	for _, e := range employees {
		e.ID = models.NormalizeUserID(e.ID)
		st.employees = append(st.employees, e)
	}
	return &Store{
		Messages:      &MessageStore{st: st},
		Tombstones:    &TombstoneStore{st: st},
		Notifications: &NotificationStore{st: st},
		Directory:     &DirectoryStore{st: st},
		Announcements: &AnnouncementStore{st: st},
	}
}

func (st *state) hidden(userID, messageID string) bool {
	_, ok := st.tombstones[tombstoneKey{userID: userID, messageID: messageID}]
	return ok
}

// sorted returns matching messages ordered by timestamp, then insertion.
func (st *state) sorted(match func(*models.Message) bool) []*storedMessage {
	out := make([]*storedMessage, 0)
	for _, sm := range st.messages {
		if match(&sm.msg) {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].msg.Timestamp.Equal(out[j].msg.Timestamp) {
			return out[i].msg.Timestamp.Before(out[j].msg.Timestamp)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func copyMessage(m models.Message) models.Message {
	m.RecipientID = append(models.Recipients(nil), m.RecipientID...)
	m.Reactions = append([]models.Reaction{}, m.Reactions...)
	m.DeliveredTo = append([]string{}, m.DeliveredTo...)
	m.ReadBy = append([]string{}, m.ReadBy...)
	if m.DeletedAt != nil {
		at := *m.DeletedAt
		m.DeletedAt = &at
	}
	if len(m.RecipientID) == 0 {
		m.RecipientID = nil
	}
	return m
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func lastN(in []*storedMessage, limit int) []models.Message {
	if limit > 0 && len(in) > limit {
		in = in[len(in)-limit:]
	}
	out := make([]models.Message, 0, len(in))
	for _, sm := range in {
		out = append(out, copyMessage(sm.msg))
	}
	return out
}

func between(m *models.Message, a, b string) bool {
	if m.Kind != models.KindDirect {
		return false
	}
	return (m.SenderID == a && m.RecipientID.Contains(b)) ||
		(m.SenderID == b && m.RecipientID.Contains(a))
}

// MessageStore implements repository.MessageRepository.
type MessageStore struct{ st *state }

func (s *MessageStore) Create(_ context.Context, msg *models.Message) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.seq++
	s.st.messages[msg.ID] = &storedMessage{seq: s.st.seq, msg: copyMessage(*msg)}
	return nil
}

func (s *MessageStore) GetByID(_ context.Context, id string) (*models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sm, ok := s.st.messages[id]
	if !ok {
		return nil, nil
	}
	m := copyMessage(sm.msg)
	return &m, nil
}

func (s *MessageStore) GetByIDs(_ context.Context, ids []string) ([]models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return lastN(s.st.sorted(func(m *models.Message) bool { return contains(ids, m.ID) }), 0), nil
}

func (s *MessageStore) AddToSet(_ context.Context, field models.SetField, messageIDs []string, userIDs []string) ([]string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	changed := make([]string, 0)
	for _, id := range messageIDs {
		sm, ok := s.st.messages[id]
		if !ok {
			continue
		}
		set := fieldSet(&sm.msg, field)
		grew := false
		for _, u := range userIDs {
			if !contains(*set, u) {
				*set = append(*set, u)
				grew = true
			}
		}
		if grew {
			changed = append(changed, id)
		}
	}
	return changed, nil
}

func (s *MessageStore) AddToSetInChannel(_ context.Context, field models.SetField, channelID string, userID string) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var n int64
	for _, sm := range s.st.messages {
		if sm.msg.Kind != models.KindChannel || sm.msg.ChannelID != channelID {
			continue
		}
		set := fieldSet(&sm.msg, field)
		if !contains(*set, userID) {
			*set = append(*set, userID)
			n++
		}
	}
	return n, nil
}

func fieldSet(m *models.Message, field models.SetField) *[]string {
	if field == models.FieldReadBy {
		return &m.ReadBy
	}
	return &m.DeliveredTo
}

func (s *MessageStore) ListChannel(_ context.Context, channelID, viewerID string, limit int) ([]models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return lastN(s.st.sorted(func(m *models.Message) bool {
		return m.Kind == models.KindChannel && m.ChannelID == channelID &&
			(viewerID == "" || !s.st.hidden(viewerID, m.ID))
	}), limit), nil
}

func (s *MessageStore) ListDirect(_ context.Context, a, b, viewerID string, limit int) ([]models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return lastN(s.st.sorted(func(m *models.Message) bool {
		return between(m, a, b) && (viewerID == "" || !s.st.hidden(viewerID, m.ID))
	}), limit), nil
}

func (s *MessageStore) ListUndelivered(_ context.Context, userID string, channelIDs []string) ([]models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return lastN(s.st.sorted(func(m *models.Message) bool {
		if contains(m.DeliveredTo, userID) || s.st.hidden(userID, m.ID) {
			return false
		}
		if m.Kind == models.KindDirect {
			return m.RecipientID.Contains(userID)
		}
		return contains(channelIDs, m.ChannelID)
	}), 0), nil
}

func (s *MessageStore) CountUnread(_ context.Context, userID string, channelIDs []string) (map[string]int, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	counts := make(map[string]int)
	for _, sm := range s.st.messages {
		m := &sm.msg
		if contains(m.ReadBy, userID) || s.st.hidden(userID, m.ID) {
			continue
		}
		switch {
		case m.Kind == models.KindDirect && m.RecipientID.Contains(userID):
			counts[m.SenderID]++
		case m.Kind == models.KindChannel && m.SenderID != userID && contains(channelIDs, m.ChannelID):
			counts[m.ChannelID]++
		}
	}
	return counts, nil
}

func (s *MessageStore) MessageIDsInChannel(_ context.Context, channelID string) ([]string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return ids(s.st.sorted(func(m *models.Message) bool {
		return m.Kind == models.KindChannel && m.ChannelID == channelID
	})), nil
}

func (s *MessageStore) MessageIDsBetween(_ context.Context, a, b string) ([]string, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return ids(s.st.sorted(func(m *models.Message) bool { return between(m, a, b) })), nil
}

func ids(in []*storedMessage) []string {
	out := make([]string, 0, len(in))
	for _, sm := range in {
		out = append(out, sm.msg.ID)
	}
	return out
}

func (s *MessageStore) UpdateReactions(_ context.Context, id string, mutate func([]models.Reaction) []models.Reaction) ([]models.Reaction, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sm, ok := s.st.messages[id]
	if !ok {
		return nil, nil
	}
	next := mutate(append([]models.Reaction{}, sm.msg.Reactions...))
	if next == nil {
		next = []models.Reaction{}
	}
	sm.msg.Reactions = next
	return append([]models.Reaction{}, next...), nil
}

func (s *MessageStore) Redact(_ context.Context, id, placeholder string, at time.Time) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	sm, ok := s.st.messages[id]
	if !ok {
		return false, nil
	}
	sm.msg.Content = placeholder
	sm.msg.Deleted = true
	if sm.msg.DeletedAt == nil {
		sm.msg.DeletedAt = &at
	}
	return true, nil
}

func (s *MessageStore) Delete(_ context.Context, id string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.messages[id]; !ok {
		return false, nil
	}
	delete(s.st.messages, id)
	return true, nil
}

func (s *MessageStore) PurgeRedacted(_ context.Context, cutoff time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var n int64
	for id, sm := range s.st.messages {
		if sm.msg.Deleted && sm.msg.DeletedAt != nil && sm.msg.DeletedAt.Before(cutoff) {
			delete(s.st.messages, id)
			n++
		}
	}
	return n, nil
}

// TombstoneStore implements repository.TombstoneRepository.
type TombstoneStore struct{ st *state }

func (s *TombstoneStore) Hide(_ context.Context, userID string, messageIDs []string, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, id := range messageIDs {
		key := tombstoneKey{userID: userID, messageID: id}
		if _, ok := s.st.tombstones[key]; !ok {
			s.st.tombstones[key] = at
		}
	}
	return nil
}

func (s *TombstoneStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var n int64
	for key, created := range s.st.tombstones {
		if created.Before(cutoff) {
			delete(s.st.tombstones, key)
			n++
		}
	}
	return n, nil
}

func (s *TombstoneStore) IsHidden(_ context.Context, userID, messageID string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.hidden(userID, messageID), nil
}

// Count returns the number of stored tombstones.
func (s *TombstoneStore) Count() int {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return len(s.st.tombstones)
}

// NotificationStore implements repository.NotificationRepository.
type NotificationStore struct{ st *state }

func (s *NotificationStore) Create(_ context.Context, n *models.Notification) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.notifications = append(s.st.notifications, *n)
	return nil
}

func (s *NotificationStore) ListUnread(_ context.Context, userID string) ([]models.Notification, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, n := range s.st.notifications {
		if n.UserID == userID && !n.IsRead {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *NotificationStore) MarkRead(_ context.Context, ids []string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for i := range s.st.notifications {
		if contains(ids, s.st.notifications[i].ID) {
			s.st.notifications[i].IsRead = true
		}
	}
	return nil
}

// All returns every notification, read or not.
func (s *NotificationStore) All() []models.Notification {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return append([]models.Notification(nil), s.st.notifications...)
}

// DirectoryStore implements repository.DirectoryRepository.
type DirectoryStore struct{ st *state }

func (s *DirectoryStore) GetEmployee(_ context.Context, userID string) (*models.Employee, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	userID = models.NormalizeUserID(userID)
	for _, e := range s.st.employees {
		if e.ID == userID {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (s *DirectoryStore) ListEmployees(_ context.Context) ([]models.Employee, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return append([]models.Employee{}, s.st.employees...), nil
}

// Put adds or replaces an employee.
func (s *DirectoryStore) Put(e models.Employee) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	e.ID = models.NormalizeUserID(e.ID)
	for i := range s.st.employees {
		if s.st.employees[i].ID == e.ID {
			s.st.employees[i] = e
			return
		}
	}
	s.st.employees = append(s.st.employees, e)
}

// AnnouncementStore implements repository.AnnouncementRepository.
type AnnouncementStore struct{ st *state }

func (s *AnnouncementStore) Create(_ context.Context, a *models.Announcement) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.announcements = append(s.st.announcements, *a)
	return nil
}

func (s *AnnouncementStore) ListPublished(_ context.Context) ([]models.Announcement, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.Announcement, 0)
	for _, a := range s.st.announcements {
		if a.Status == models.AnnouncementPublished {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *AnnouncementStore) ListDue(_ context.Context, now time.Time) ([]models.Announcement, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]models.Announcement, 0)
	for _, a := range s.st.announcements {
		if a.Status == models.AnnouncementScheduled && a.ScheduledAt != nil && !a.ScheduledAt.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AnnouncementStore) MarkPublished(_ context.Context, id string, at time.Time) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for i := range s.st.announcements {
		a := &s.st.announcements[i]
		if a.ID == id && a.Status == models.AnnouncementScheduled {
			a.Status = models.AnnouncementPublished
			a.Date = at
			return true, nil
		}
	}
	return false, nil
}
