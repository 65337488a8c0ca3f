package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/middleware"
	"github.com/lalith-99/portalchat/internal/models"
	"go.uber.org/zap"
)

type StatusService interface {
	Statuses(ctx context.Context) ([]models.UserPresence, error)
	SetStatus(ctx context.Context, userID string, status models.Status) error
}

type UserHandler struct {
	svc    StatusService
	logger *zap.Logger
}

func NewUserHandler(svc StatusService, logger *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

type setStatusRequest struct {
	Status models.Status `json:"status" binding:"required"`
}

// Statuses handles GET /v1/users/status
func (h *UserHandler) Statuses(c *gin.Context) {
	list, err := h.svc.Statuses(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to list statuses")
		return
	}
	c.JSON(http.StatusOK, list)
}

// SetStatus handles POST /v1/users/me/status
func (h *UserHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	if err := h.svc.SetStatus(c.Request.Context(), userID, req.Status); err != nil {
		respondError(c, h.logger, err, "failed to set status")
		return
	}
	c.JSON(http.StatusOK, models.UserPresence{UserID: userID, Status: req.Status})
}
