package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/portalchat/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "name": GetName(c), "admin": IsAdmin(c)})
	})
	r.GET("/admin", AuthMiddleware(secret), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, admin bool) string {
	t.Helper()
	tok, err := auth.GenerateToken("asha@corp", "Asha", admin, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()
	tok := token(t, false)

	tests := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{"bearer header", "/me", "Bearer " + tok, http.StatusOK},
		{"lowercase scheme", "/me", "bearer " + tok, http.StatusOK},
		{"query token", "/me?token=" + tok, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + tok, http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"asha@corp","name":"Asha","admin":false}`, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareNormalizesUserID(t *testing.T) {
	r := newRouter()
	tok, err := auth.GenerateToken("Asha@Corp", "Asha", false, secret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"asha@corp","name":"Asha","admin":false}`, w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	r := newRouter()
	for name, tc := range map[string]struct {
		admin bool
		want  int
	}{
		"admin":     {true, http.StatusNoContent},
		"non-admin": {false, http.StatusForbidden},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, tc.admin))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
