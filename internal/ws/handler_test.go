package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/portalchat/internal/auth"
	"github.com/lalith-99/portalchat/internal/chat"
	"github.com/lalith-99/portalchat/internal/membership"
	"github.com/lalith-99/portalchat/internal/middleware"
	"github.com/lalith-99/portalchat/internal/models"
	"github.com/lalith-99/portalchat/internal/presence"
	"github.com/lalith-99/portalchat/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "ws-secret"

type gateway struct {
	srv      *httptest.Server
	store    *memory.Store
	registry *presence.Local
}

func newGateway(t *testing.T, opts Options) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New(
		models.Employee{ID: "asha@corp", Name: "Asha", Department: "Research", Team: "Research"},
		models.Employee{ID: "ben@corp", Name: "Ben", Department: "Research", Team: "Research"},
	)
	registry := presence.NewLocal(zap.NewNop())
	svc := chat.NewService(chat.Deps{
		Messages:      store.Messages,
		Tombstones:    store.Tombstones,
		Notifications: store.Notifications,
		Directory:     store.Directory,
		Membership:    membership.NewResolver(store.Directory, 0, zap.NewNop()),
		Registry:      registry,
		Logger:        zap.NewNop(),
	})

	r := gin.New()
	r.GET("/v1/ws", middleware.AuthMiddleware(secret), NewHandler(svc, opts, zap.NewNop()).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &gateway{srv: srv, store: store, registry: registry}
}

func (g *gateway) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(userID, "", false, secret, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/v1/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (g *gateway) waitOnline(t *testing.T, userID string, want bool) {
	t.Helper()
	assert.Eventually(t, func() bool {
		online, err := g.registry.IsOnline(context.Background(), userID)
		return err == nil && online == want
	}, 2*time.Second, 10*time.Millisecond)
}

// next reads frames until one of the wanted type arrives.
func next(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)
		var ev map[string]any
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev["type"] == eventType {
			return ev
		}
	}
}

func TestDirectMessageOverSockets(t *testing.T) {
	g := newGateway(t, Options{})

	asha := g.dial(t, "asha@corp")
	g.waitOnline(t, "asha@corp", true)
	ben := g.dial(t, "ben@corp")
	g.waitOnline(t, "ben@corp", true)

	status := next(t, asha, "status_update")
	assert.Equal(t, "ben@corp", status["user_id"])
	assert.Equal(t, "online", status["status"])

	require.NoError(t, asha.WriteJSON(map[string]any{
		"id":           "optimistic-1",
		"content":      "hello ben",
		"recipient_id": "ben@corp",
	}))

	msg := next(t, ben, "direct_message")
	assert.Equal(t, "hello ben", msg["content"])
	assert.Equal(t, "asha@corp", msg["sender_id"])
	assert.Equal(t, "Asha", msg["sender_name"])

	// The receipt is pushed while routing, before the confirmation.
	receipt := next(t, asha, "delivery_receipt")
	assert.Equal(t, msg["id"], receipt["message_id"])
	assert.Equal(t, "ben@corp", receipt["delivered_to"])

	confirm := next(t, asha, "message_confirmation")
	assert.Equal(t, "optimistic-1", confirm["optimistic_id"])
	assert.Equal(t, msg["id"], confirm["final_id"])
}

func TestOfflineRecipientGetsMissedMessagesOnConnect(t *testing.T) {
	g := newGateway(t, Options{})

	asha := g.dial(t, "asha@corp")
	g.waitOnline(t, "asha@corp", true)
	require.NoError(t, asha.WriteJSON(map[string]any{
		"content":      "while you were out",
		"recipient_id": "ben@corp",
	}))
	next(t, asha, "message_confirmation")

	ben := g.dial(t, "ben@corp")
	missed := next(t, ben, "missed_messages")
	msgs, ok := missed["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "while you were out", msgs[0].(map[string]any)["content"])

	note := next(t, ben, "notification")
	assert.NotNil(t, note["notification"])
}

func TestDisconnectCleansUpAndBroadcastsOffline(t *testing.T) {
	g := newGateway(t, Options{})

	asha := g.dial(t, "asha@corp")
	g.waitOnline(t, "asha@corp", true)
	ben := g.dial(t, "ben@corp")
	g.waitOnline(t, "ben@corp", true)
	next(t, asha, "status_update")

	require.NoError(t, ben.Close())
	g.waitOnline(t, "ben@corp", false)

	status := next(t, asha, "status_update")
	assert.Equal(t, "ben@corp", status["user_id"])
	assert.Equal(t, "offline", status["status"])
}

func TestMalformedFrameKeepsSessionOpen(t *testing.T) {
	g := newGateway(t, Options{})

	asha := g.dial(t, "asha@corp")
	g.waitOnline(t, "asha@corp", true)
	require.NoError(t, asha.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, asha.WriteJSON(map[string]any{"id": "optimistic-2", "content": "still here", "channel_id": "general"}))

	confirm := next(t, asha, "message_confirmation")
	assert.Equal(t, "optimistic-2", confirm["optimistic_id"])
}

func TestRateLimitDropsExcessFrames(t *testing.T) {
	g := newGateway(t, Options{RateLimit: 0.001, RateBurst: 1})

	asha := g.dial(t, "asha@corp")
	g.waitOnline(t, "asha@corp", true)
	for i := 0; i < 3; i++ {
		require.NoError(t, asha.WriteJSON(map[string]any{"content": "spam", "channel_id": "general"}))
	}
	next(t, asha, "message_confirmation")

	// Give the read loop time to drain the remaining frames.
	time.Sleep(100 * time.Millisecond)
	msgs, err := g.store.Messages.ListChannel(context.Background(), "general", "", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestUnauthenticatedUpgradeRejected(t *testing.T) {
	g := newGateway(t, Options{})
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestClientSendNeverBlocks(t *testing.T) {
	c := newClient(nil, "asha@corp", Options{SendBuffer: 1, RateLimit: 1, RateBurst: 1}, zap.NewNop())

	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrSendBufferFull)

	c.close()
	c.close()
	assert.ErrorIs(t, c.Send([]byte("c")), ErrClosed)
}

// failingSession registers the socket and then blows up before the
// missed-message push completes.
type failingSession struct {
	reg *presence.Local
}

func (s failingSession) Connect(ctx context.Context, conn presence.Conn, userID string) {
	s.reg.Connect(ctx, conn, userID)
	panic("missed push failed")
}

func (s failingSession) Disconnect(ctx context.Context, conn presence.Conn, userID string) {
	s.reg.Disconnect(ctx, conn, userID)
}

func (failingSession) Handle(context.Context, presence.Conn, string, []byte) {}

func TestFailedConnectStillCleansUp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := presence.NewLocal(zap.NewNop())

	r := gin.New()
	r.GET("/v1/ws", middleware.AuthMiddleware(secret), NewHandler(failingSession{reg: reg}, Options{}, zap.NewNop()).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	g := &gateway{srv: srv, registry: reg}

	conn := g.dial(t, "asha@corp")

	// The socket only closes after Disconnect has run.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	online, err := reg.IsOnline(context.Background(), "asha@corp")
	require.NoError(t, err)
	assert.False(t, online)
	all, err := reg.Statuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.UserPresence{{UserID: "asha@corp", Status: models.StatusOffline}}, all)
}
