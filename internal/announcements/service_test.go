package announcements

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/portalchat/internal/chat"
	"github.com/lalith-99/portalchat/internal/events"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/presence"
	"github.com/lalith-99/portalchat/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	id string
	mu sync.Mutex
	in [][]byte
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, p)
	return nil
}

func (c *fakeConn) announcements(t *testing.T) []events.NewAnnouncement {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.NewAnnouncement
	for _, raw := range c.in {
		var ev events.NewAnnouncement
		require.NoError(t, json.Unmarshal(raw, &ev))
		if ev.Type == events.TypeNewAnnouncement {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	svc   *Service
	store *memory.Store
	reg   *presence.Local
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(
			models.Employee{ID: "admin@corp", Name: "Admin", Department: "HR"},
			models.Employee{ID: "asha@corp", Name: "Asha", Department: "Research"},
			models.Employee{ID: "ben@corp", Name: "Ben", Department: "Research"},
		),
		reg:   presence.NewLocal(zap.NewNop()),
		clock: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	seq := 0
	f.svc = NewService(Deps{
		Announcements: f.store.Announcements,
		Notifications: f.store.Notifications,
		Directory:     f.store.Directory,
		Registry:      f.reg,
		Logger:        zap.NewNop(),
		Now:           func() time.Time { return f.clock },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
	return f
}

func (f *fixture) connect(t *testing.T, userID string) *fakeConn {
	t.Helper()
	c := &fakeConn{id: "conn-" + userID}
	_, err := f.reg.Connect(context.Background(), c, userID)
	require.NoError(t, err)
	return c
}

func TestCreatePublishesImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asha := f.connect(t, "asha@corp")

	a, err := f.svc.Create(ctx, Author{ID: "admin@corp", Name: "HR Desk"}, CreateInput{
		Title:   "Holiday",
		Content: "Office closed Friday",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementPublished, a.Status)
	assert.Equal(t, DefaultPriority, a.Priority)
	assert.Equal(t, "HR Desk", a.Author)

	got := asha.announcements(t)
	require.Len(t, got, 1)
	assert.Equal(t, "Holiday", got[0].Announcement.Title)

	// Ben is offline and is not the author; admin is the author.
	notes := f.store.Notifications.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "ben@corp", notes[0].UserID)
	assert.Equal(t, models.NotifyAnnouncement, notes[0].Type)
	assert.Equal(t, a.ID, notes[0].MessageID)
	assert.Equal(t, "Holiday", notes[0].MessageContent)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateScheduled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	asha := f.connect(t, "asha@corp")

	at := f.clock.Add(time.Hour)
	a, err := f.svc.Create(ctx, Author{ID: "admin@corp"}, CreateInput{
		Title: "Town hall", Content: "At noon", Priority: "HIGH", ScheduledAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementScheduled, a.Status)
	assert.Equal(t, "high", a.Priority)
	assert.Empty(t, asha.announcements(t))
	assert.Empty(t, f.store.Notifications.All())

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := f.svc.PublishDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock = at.Add(time.Minute)
	n, err = f.svc.PublishDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := asha.announcements(t)
	require.Len(t, got, 1)
	assert.Equal(t, models.AnnouncementPublished, got[0].Announcement.Status)
	assert.True(t, f.clock.Equal(got[0].Announcement.Date))

	// The author is unknown to the poller, so every offline employee is notified.
	assert.Len(t, f.store.Notifications.All(), 2)

	n, err = f.svc.PublishDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, asha.announcements(t), 1)
}

func TestCreatePastScheduleIsImmediate(t *testing.T) {
	f := newFixture(t)
	past := f.clock.Add(-time.Hour)
	a, err := f.svc.Create(context.Background(), Author{ID: "admin@corp"}, CreateInput{
		Title: "Late", Content: "x", ScheduledAt: &past,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AnnouncementPublished, a.Status)
	assert.Nil(t, a.ScheduledAt)
}

func TestCreateRejects(t *testing.T) {
	f := newFixture(t)
	for name, in := range map[string]CreateInput{
		"no title":     {Content: "x"},
		"no content":   {Title: "x", Content: "  "},
		"bad priority": {Title: "x", Content: "y", Priority: "urgent"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), Author{ID: "admin@corp"}, in)
			assert.ErrorIs(t, err, chat.ErrInvalidInput)
		})
	}
}
