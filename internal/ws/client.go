// Package ws is the socket gateway: it upgrades authenticated requests and
// pumps frames between a gorilla connection and the chat service.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/portalchat/internal/observ"
	"github.com/lalith-99/portalchat/internal/presence"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Session is the part of chat.Service a socket drives.
type Session interface {
	Connect(ctx context.Context, conn presence.Conn, userID string)
	Disconnect(ctx context.Context, conn presence.Conn, userID string)
	Handle(ctx context.Context, conn presence.Conn, userID string, raw []byte)
}

// Client is one open socket. It satisfies presence.Conn.
type Client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	limiter *rate.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, userID string, opts Options, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		userID:  userID,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		logger:  logger.With(zap.String("user_id", userID), zap.String("conn_id", id)),
		send:    make(chan []byte, opts.SendBuffer),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues payload for the write pump without blocking. A peer that has
// stopped reading fills its buffer and starts failing instead of stalling
// the fan-out.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump runs on the request goroutine until the socket fails. Cleanup
// runs on every exit path.
// readPump registers the session, then reads frames until the socket goes
// away. Disconnect runs on every exit path, a failed Connect included.
func (c *Client) readPump(ctx context.Context, svc Session) {
	defer func() {
		svc.Disconnect(context.WithoutCancel(ctx), c, c.userID)
		c.close()
	}()
	if !c.connect(ctx, svc) {
		return
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			observ.FramesDropped.WithLabelValues("rate_limited").Inc()
			c.logger.Warn("dropping frame over rate limit")
			continue
		}
		c.handle(ctx, svc, message)
	}
}

func (c *Client) connect(ctx context.Context, svc Session) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session connect panicked", zap.Any("panic", r))
			ok = false
		}
	}()
	svc.Connect(ctx, c, c.userID)
	return true
}

func (c *Client) handle(ctx context.Context, svc Session, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observ.FramesDropped.WithLabelValues("panic").Inc()
			c.logger.Error("frame handler panicked", zap.Any("panic", r))
		}
	}()
	svc.Handle(ctx, c, c.userID, message)
}

// writePump owns every write to the socket. It exits when the send channel
// is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
