package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/auth"
	"github.com/lalith-99/portalchat/internal/models"
)

// Context keys for the verified claims.
const (
	ContextKeyUserID = "user_id"
	ContextKeyName   = "name"
	ContextKeyAdmin  = "admin"
)

// AuthMiddleware verifies a Bearer token from the Authorization header, or
// from the token query parameter for the socket upgrade, where browsers
// cannot set headers.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed token",
			})
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, models.NormalizeUserID(claims.UserID))
		c.Set(ContextKeyName, claims.Name)
		c.Set(ContextKeyAdmin, claims.Admin)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// RequireAdmin aborts with 403 unless the token carried the admin flag.
// It must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin only",
			})
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

func GetName(c *gin.Context) string {
	return c.GetString(ContextKeyName)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextKeyAdmin)
}
