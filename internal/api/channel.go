package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/middleware"
	"github.com/lalith-99/portalchat/internal/models"
	"go.uber.org/zap"
)

// ChannelCatalog is satisfied by membership.Resolver.
type ChannelCatalog interface {
	Catalog(ctx context.Context) ([]models.Channel, error)
	ChannelsFor(ctx context.Context, userID string) ([]string, error)
}

type ChannelHandler struct {
	catalog ChannelCatalog
	logger  *zap.Logger
}

func NewChannelHandler(catalog ChannelCatalog, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{catalog: catalog, logger: logger}
}

// List handles GET /v1/channels?mine=true
func (h *ChannelHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	channels, err := h.catalog.Catalog(ctx)
	if err != nil {
		respondError(c, h.logger, err, "failed to list channels")
		return
	}

	if c.Query("mine") != "true" {
		c.JSON(http.StatusOK, channels)
		return
	}

	mine, err := h.catalog.ChannelsFor(ctx, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to list channels")
		return
	}
	member := make(map[string]bool, len(mine))
	for _, id := range mine {
		member[id] = true
	}
	out := make([]models.Channel, 0, len(mine))
	for _, ch := range channels {
		if member[ch.ID] {
			out = append(out, ch)
		}
	}
	c.JSON(http.StatusOK, out)
}
