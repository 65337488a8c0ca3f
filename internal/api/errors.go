package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/chat"
	"github.com/lalith-99/portalchat/internal/membership"
	"go.uber.org/zap"
)

// respondError maps core sentinels onto status codes. Anything unrecognised
// is logged and reported as a generic 500 with fallback as the message.
func respondError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, membership.ErrUnknownChannel):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// limitParam reads ?limit=. Zero means "use the default"; the core caps it.
func limitParam(c *gin.Context) (int, bool) {
	l := c.Query("limit")
	if l == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(l)
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
		return 0, false
	}
	return limit, true
}
