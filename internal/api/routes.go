package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/middleware"
)

type Handlers struct {
	Messages      *MessageHandler
	Channels      *ChannelHandler
	Users         *UserHandler
	Announcements *AnnouncementHandler
	Socket        gin.HandlerFunc
	// Health, when set, is checked by /v1/health.
	Health func(ctx context.Context) error
}

// Register mounts every /v1 route on r. /v1/health is public; everything
// else goes through AuthMiddleware.
func Register(r *gin.Engine, h Handlers, secret string) {
	r.GET("/v1/health", func(c *gin.Context) {
		if h.Health != nil {
			if err := h.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(secret))

	if h.Socket != nil {
		v1.GET("/ws", h.Socket)
	}

	v1.GET("/channels", h.Channels.List)
	v1.GET("/channels/:id/messages", h.Messages.ListChannel)
	v1.POST("/channels/:id/clear", h.Messages.ClearChannel)

	v1.GET("/direct/:partner/messages", h.Messages.ListDirect)
	v1.POST("/direct/:partner/clear", h.Messages.ClearConversation)

	v1.GET("/messages/unread-count", h.Messages.UnreadCount)
	v1.GET("/messages/:id", h.Messages.Get)
	v1.POST("/messages/:id/hide", h.Messages.Hide)
	v1.POST("/messages/:id/delete-everyone", h.Messages.DeleteForEveryone)
	v1.DELETE("/messages/:id", middleware.RequireAdmin(), h.Messages.Delete)

	v1.GET("/users/status", h.Users.Statuses)
	v1.POST("/users/me/status", h.Users.SetStatus)

	v1.GET("/announcements", h.Announcements.List)
	v1.POST("/announcements", middleware.RequireAdmin(), h.Announcements.Create)
}
