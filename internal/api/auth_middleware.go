// internal/api/auth_middleware.go
package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DragonSwordMap/internal/auth"
	"github.com/Corphon/DragonSwordMap/internal/models"
)

const (
	contextKeyMode          = "entry_mode"
	contextKeyAuthenticated = "admin_authenticated"
)

// AuthMiddleware 解析 Bearer 令牌，浏览器 WebSocket 无法带头部时读取 ?token=。
// 没有或无效的令牌按普通用户处理
func AuthMiddleware(tokens *auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKeyMode, models.ModeUser)
		c.Set(contextKeyAuthenticated, false)

		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" || tokens == nil {
			c.Next()
			return
		}

		parsed, err := auth.ParseToken(token, tokens)
		if err != nil {
			c.Set("auth_error", err.Error())
			c.Next()
			return
		}

		c.Set(contextKeyMode, parsed.Mode)
		c.Set(contextKeyAuthenticated, parsed.Mode == models.ModeAdmin)
		c.Next()
	}
}

// RequireAdmin 只允许持有管理员令牌的请求通过
func RequireAdmin() gin.HandlerFunc {
	rh := NewResponseHelper()
	return func(c *gin.Context) {
		if !isAdmin(c) {
			rh.Forbidden(c, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

func isAdmin(c *gin.Context) bool {
	return c.GetBool(contextKeyAuthenticated)
}

// requestMode 请求所属的入口模式
func requestMode(c *gin.Context) models.EntryMode {
	if mode, ok := c.Get(contextKeyMode); ok {
		if m, ok := mode.(models.EntryMode); ok {
			return m
		}
	}
	return models.ModeUser
}
