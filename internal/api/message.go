package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/middleware"
	"github.com/lalith-99/portalchat/internal/models"
	"go.uber.org/zap"
)

// MessageService is what the message endpoints need from chat.Service.
type MessageService interface {
	GetMessage(ctx context.Context, userID, messageID string) (*models.Message, error)
	ChannelMessages(ctx context.Context, userID, channelID string, limit int) ([]models.Message, error)
	DirectMessages(ctx context.Context, userID, partnerID string, limit int) ([]models.Message, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
	DeleteForMe(ctx context.Context, userID, messageID string) error
	DeleteForEveryone(ctx context.Context, userID, messageID string) (*models.Message, error)
	PermanentDelete(ctx context.Context, admin bool, messageID string) error
	ClearChannel(ctx context.Context, userID, channelID string) (int, error)
	ClearConversation(ctx context.Context, userID, partnerID string) (int, error)
}

type MessageHandler struct {
	svc    MessageService
	logger *zap.Logger
}

func NewMessageHandler(svc MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// ListChannel handles GET /v1/channels/:id/messages?limit=50
func (h *MessageHandler) ListChannel(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	msgs, err := h.svc.ChannelMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// ListDirect handles GET /v1/direct/:partner/messages?limit=50
func (h *MessageHandler) ListDirect(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	msgs, err := h.svc.DirectMessages(c.Request.Context(), middleware.GetUserID(c), models.NormalizeUserID(c.Param("partner")), limit)
	if err != nil {
		respondError(c, h.logger, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Get handles GET /v1/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	msg, err := h.svc.GetMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to get message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// UnreadCount handles GET /v1/messages/unread-count
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	counts, err := h.svc.UnreadCounts(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to count unread messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// Hide handles POST /v1/messages/:id/hide
func (h *MessageHandler) Hide(c *gin.Context) {
	if err := h.svc.DeleteForMe(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err, "failed to hide message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": c.Param("id"), "hidden": true})
}

// DeleteForEveryone handles POST /v1/messages/:id/delete-everyone
func (h *MessageHandler) DeleteForEveryone(c *gin.Context) {
	msg, err := h.svc.DeleteForEveryone(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to delete message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /v1/messages/:id (administrators only)
func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.svc.PermanentDelete(c.Request.Context(), middleware.IsAdmin(c), c.Param("id")); err != nil {
		respondError(c, h.logger, err, "failed to delete message")
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearChannel handles POST /v1/channels/:id/clear
func (h *MessageHandler) ClearChannel(c *gin.Context) {
	n, err := h.svc.ClearChannel(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "failed to clear channel")
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

// ClearConversation handles POST /v1/direct/:partner/clear
func (h *MessageHandler) ClearConversation(c *gin.Context) {
	n, err := h.svc.ClearConversation(c.Request.Context(), middleware.GetUserID(c), models.NormalizeUserID(c.Param("partner")))
	if err != nil {
		respondError(c, h.logger, err, "failed to clear conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}
