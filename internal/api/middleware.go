// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Corphon/DragonSwordMap/internal/utils"
)

const contextKeyRequestID = "request_id"

// RateLimiter 固定窗口限流
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.Mutex
	now      func() time.Time
}

// Visitor represents a client with rate limiting data
type Visitor struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		now:      time.Now,
	}
}

// prune 顺带清理过期的访问者
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for key, visitor := range rl.visitors {
		if now.After(visitor.Reset) {
			delete(rl.visitors, key)
		}
	}
}

// Allow checks if a visitor is allowed to make a request
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (Visitor, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	visitor, exists := rl.visitors[key]
	if !exists || now.After(visitor.Reset) {
		if len(rl.visitors) > 1024 {
			rl.pruneLocked(now)
		}
		visitor = &Visitor{Limit: limit, Remaining: limit - 1, Reset: now.Add(window)}
		rl.visitors[key] = visitor
		return *visitor, true
	}

	if visitor.Remaining <= 0 {
		return *visitor, false
	}
	visitor.Remaining--
	return *visitor, true
}

// RateLimitByIP 按客户端 IP 限流
func RateLimitByIP(rl *RateLimiter, limit int, window time.Duration) gin.HandlerFunc {
	rh := NewResponseHelper()
	return func(c *gin.Context) {
		visitor, ok := rl.Allow(c.ClientIP(), limit, window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(visitor.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(visitor.Remaining, 0)))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", visitor.Reset.Unix()))

		if !ok {
			rh.Error(c, http.StatusTooManyRequests, ErrorRateLimited, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// requestIDMiddleware 为每个请求分配 ID
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// metricsMiddleware 记录请求耗时，路由取模板路径
func metricsMiddleware(metrics *utils.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Admin-Password, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
