package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/announcements"
	"github.com/lalith-99/portalchat/internal/middleware"
	"github.com/lalith-99/portalchat/internal/models"
	"go.uber.org/zap"
)

type AnnouncementService interface {
	Create(ctx context.Context, author announcements.Author, in announcements.CreateInput) (*models.Announcement, error)
	List(ctx context.Context) ([]models.Announcement, error)
}

type AnnouncementHandler struct {
	svc    AnnouncementService
	logger *zap.Logger
}

func NewAnnouncementHandler(svc AnnouncementService, logger *zap.Logger) *AnnouncementHandler {
	return &AnnouncementHandler{svc: svc, logger: logger}
}

// List handles GET /v1/announcements
func (h *AnnouncementHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to list announcements")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create handles POST /v1/announcements. Routed behind RequireAdmin.
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req announcements.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	author := announcements.Author{ID: middleware.GetUserID(c), Name: middleware.GetName(c)}
	a, err := h.svc.Create(c.Request.Context(), author, req)
	if err != nil {
		respondError(c, h.logger, err, "failed to create announcement")
		return
	}
	c.JSON(http.StatusCreated, a)
}
