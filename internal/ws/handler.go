package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/portalchat/internal/middleware"
	"go.uber.org/zap"
)

type Options struct {
	SendBuffer int
	RateLimit  float64
	RateBurst  int
	// CheckOrigin defaults to accepting every origin; the portal frontend is
	// served from a different host than the chat server.
	CheckOrigin func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 10
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 20
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	return o
}

type Handler struct {
	session  Session
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(session Session, opts Options, logger *zap.Logger) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		session: session,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		logger: logger,
	}
}

// Serve upgrades the request. It must sit behind middleware.AuthMiddleware,
// which accepts the token from the query string for this route.
func (h *Handler) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := newClient(conn, userID, h.opts, h.logger)
	client.logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.writePump()
	client.readPump(ctx, h.session)

	client.logger.Info("websocket disconnected")
}
