package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DragonSwordMap/internal/auth"
	"github.com/Corphon/DragonSwordMap/internal/models"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, ok := rl.Allow("1.2.3.4", 3, time.Minute)
		require.True(t, ok)
	}
	v, ok := rl.Allow("1.2.3.4", 3, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 0, v.Remaining)

	_, ok = rl.Allow("5.6.7.8", 3, time.Minute)
	assert.True(t, ok, "limits are per key")

	now = now.Add(time.Minute + time.Second)
	_, ok = rl.Allow("1.2.3.4", 3, time.Minute)
	assert.True(t, ok, "window expired")
}

func TestAuthMiddlewareModes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokenConfig("secret", time.Hour)
	require.NoError(t, err)
	adminToken, err := auth.GenerateToken("admin", models.ModeAdmin, tokens)
	require.NoError(t, err)

	r := gin.New()
	r.Use(AuthMiddleware(tokens))
	r.GET("/mode", func(c *gin.Context) {
		c.String(http.StatusOK, string(requestMode(c)))
	})
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		path   string
		header string
		want   string
	}{
		{"no token", "/mode", "", "USER"},
		{"bearer", "/mode", "Bearer " + adminToken, "ADMIN"},
		{"query", "/mode?token=" + adminToken, "", "ADMIN"},
		{"garbage", "/mode", "Bearer nope", "USER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "An internal error occurred", sanitizeErrorMessage("bad api_key=abc"))
	assert.Equal(t, "标记不存在", sanitizeErrorMessage("标记不存在"))
}
