package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/lalith-99/portalchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	err    error
	panics bool
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	if c.panics {
		panic("socket torn down")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) received() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func statusFrames(c *fakeConn, userID string) []string {
	var out []string
	for _, f := range c.received() {
		if f["type"] == "status_update" && f["user_id"] == userID {
			out = append(out, f["status"].(string))
		}
	}
	return out
}

func TestLocalPresenceTransitions(t *testing.T) {
	ctx := context.Background()
	reg := NewLocal(zap.NewNop())

	watcher := newConn("w1")
	_, err := reg.Connect(ctx, watcher, "watcher")
	require.NoError(t, err)

	phone, laptop := newConn("a-phone"), newConn("a-laptop")

	first, err := reg.Connect(ctx, phone, "alice")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = reg.Connect(ctx, laptop, "alice")
	require.NoError(t, err)
	assert.False(t, first, "second device is not a first connection")
	assert.Equal(t, []string{"online"}, statusFrames(watcher, "alice"))

	last, err := reg.Disconnect(ctx, phone, "alice")
	require.NoError(t, err)
	assert.False(t, last)
	assert.Equal(t, []string{"online"}, statusFrames(watcher, "alice"))

	last, err = reg.Disconnect(ctx, laptop, "alice")
	require.NoError(t, err)
	assert.True(t, last)
	assert.Equal(t, []string{"online", "offline"}, statusFrames(watcher, "alice"))

	// Disconnecting again is a no-op.
	last, err = reg.Disconnect(ctx, laptop, "alice")
	require.NoError(t, err)
	assert.False(t, last)
	assert.Len(t, statusFrames(watcher, "alice"), 2)
}

func TestLocalConnectDoesNotNotifySelf(t *testing.T) {
	ctx := context.Background()
	reg := NewLocal(zap.NewNop())

	c := newConn("c1")
	_, err := reg.Connect(ctx, c, "alice")
	require.NoError(t, err)
	assert.Empty(t, statusFrames(c, "alice"))
}

func TestLocalStatusDerivation(t *testing.T) {
	ctx := context.Background()
	reg := NewLocal(zap.NewNop())

	st, err := reg.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, st)

	c := newConn("c1")
	_, err = reg.Connect(ctx, c, "alice")
	require.NoError(t, err)

	st, _ = reg.Status(ctx, "alice")
	assert.Equal(t, models.StatusOnline, st)

	require.NoError(t, reg.SetStatus(ctx, "alice", models.StatusBusy))
	st, _ = reg.Status(ctx, "alice")
	assert.Equal(t, models.StatusBusy, st)
	assert.Equal(t, []string{"busy"}, statusFrames(c, "alice"), "explicit status reaches every connection")

	_, err = reg.Disconnect(ctx, c, "alice")
	require.NoError(t, err)
	st, _ = reg.Status(ctx, "alice")
	assert.Equal(t, models.StatusOffline, st)

	all, err := reg.Statuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.UserPresence{{UserID: "alice", Status: models.StatusOffline}}, all)
}

func TestLocalExplicitStatusNeedsConnection(t *testing.T) {
	ctx := context.Background()
	reg := NewLocal(zap.NewNop())

	watcher := newConn("w")
	_, err := reg.Connect(ctx, watcher, "watcher")
	require.NoError(t, err)

	require.NoError(t, reg.SetStatus(ctx, "alice", models.StatusOnline))
	st, err := reg.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, st)
	assert.Equal(t, []string{"offline"}, statusFrames(watcher, "alice"))

	all, err := reg.Statuses(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, models.UserPresence{UserID: "alice", Status: models.StatusOffline})

	// A first connection resets the stored status to online.
	require.NoError(t, reg.SetStatus(ctx, "alice", models.StatusBusy))
	_, err = reg.Connect(ctx, newConn("a1"), "alice")
	require.NoError(t, err)
	st, _ = reg.Status(ctx, "alice")
	assert.Equal(t, models.StatusOnline, st)
}

func TestLocalSendToUser(t *testing.T) {
	ctx := context.Background()
	reg := NewLocal(zap.NewNop())

	err := reg.SendToUser(ctx, "bob", []byte(`{"type":"x"}`))
	assert.True(t, errors.Is(err, ErrUserOffline))

	a, b := newConn("b1"), newConn("b2")
	_, _ = reg.Connect(ctx, a, "bob")
	_, _ = reg.Connect(ctx, b, "bob")

	require.NoError(t, reg.SendToUser(ctx, "bob", []byte(`{"type":"x"}`)))
	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)

	online, err := reg.IsOnline(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestLocalSendToUserAllConnectionsFailing(t *testing.T) {
	ctx := context.Background()
	reg := NewLocal(zap.NewNop())

	dead := newConn("dead")
	dead.err = errors.New("closed")
	_, _ = reg.Connect(ctx, dead, "bob")

	err := reg.SendToUser(ctx, "bob", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUserOffline)
}

func TestLocalBroadcastSurvivesBadConnections(t *testing.T) {
	ctx := context.Background()
	reg := NewLocal(zap.NewNop())

	failing := newConn("failing")
	failing.err = errors.New("write: broken pipe")
	exploding := newConn("exploding")
	healthy := newConn("healthy")
	sender := newConn("sender")

	_, _ = reg.Connect(ctx, failing, "u1")
	_, _ = reg.Connect(ctx, healthy, "u3")
	_, _ = reg.Connect(ctx, sender, "me")
	_, _ = reg.Connect(ctx, exploding, "u2")
	exploding.panics = true

	before := len(healthy.received())
	require.NoError(t, reg.Broadcast(ctx, []byte(`{"type":"new_announcement"}`), "me"))

	assert.Len(t, healthy.received(), before+1)
	for _, f := range sender.received() {
		assert.NotEqual(t, "new_announcement", f["type"], "excluded user must not receive the broadcast")
	}
}
