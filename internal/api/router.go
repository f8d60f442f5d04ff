// internal/api/router.go
package api

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Corphon/DragonSwordMap/internal/auth"
	"github.com/Corphon/DragonSwordMap/internal/config"
	"github.com/Corphon/DragonSwordMap/internal/di"
	"github.com/Corphon/DragonSwordMap/internal/services"
	"github.com/Corphon/DragonSwordMap/internal/utils"
	"github.com/Corphon/DragonSwordMap/internal/viewport"
)

// 大贤者接口的限流参数
const (
	sageRateLimit  = 20
	sageRateWindow = time.Minute
)

// SetupRouter 使用全局容器配置HTTP路由
func SetupRouter() (*gin.Engine, *Handler, error) {
	return NewRouter(di.GetContainer())
}

// NewRouter 只从容器获取服务，不创建新实例
func NewRouter(container *di.Container) (*gin.Engine, *Handler, error) {
	cfg, err := di.Resolve[*config.Config](container, di.ServiceConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("配置未正确初始化: %w", err)
	}
	pinService, err := di.Resolve[*services.PinService](container, di.ServicePins)
	if err != nil {
		return nil, nil, fmt.Errorf("标记服务未正确初始化: %w", err)
	}
	sessionService, err := di.Resolve[*services.SessionService](container, di.ServiceSession)
	if err != nil {
		return nil, nil, fmt.Errorf("会话服务未正确初始化: %w", err)
	}
	sageService, err := di.Resolve[*services.SageService](container, di.ServiceSage)
	if err != nil {
		return nil, nil, fmt.Errorf("大贤者服务未正确初始化: %w", err)
	}
	metrics, err := di.Resolve[*utils.MetricsCollector](container, di.ServiceMetrics)
	if err != nil {
		return nil, nil, fmt.Errorf("指标服务未正确初始化: %w", err)
	}
	tokens, err := di.Resolve[*auth.TokenConfig](container, di.ServiceTokens)
	if err != nil {
		return nil, nil, fmt.Errorf("令牌配置未正确初始化: %w", err)
	}
	vp, err := di.Resolve[viewport.Config](container, di.ServiceViewport)
	if err != nil {
		vp = viewport.DefaultConfig()
	}

	handler := NewHandler(pinService, sessionService, sageService, metrics, vp)

	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(metricsMiddleware(metrics))
	r.Use(AuthMiddleware(tokens))

	// 静态文件服务
	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			r.Static("/static", cfg.StaticDir)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	// WebSocket 支持
	r.GET("/ws/viewport", handler.ViewportWebSocket)

	limiter := NewRateLimiter()

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.GetHealth)
		api.POST("/session", handler.EnterSession)
		api.GET("/notices", handler.GetNotices)

		// ===============================
		// 标记相关路由
		// ===============================
		pinsGroup := api.Group("/pins")
		{
			pinsGroup.GET("", handler.ListPins)
			pinsGroup.GET("/:id", handler.GetPin)
			pinsGroup.POST("", RequireAdmin(), handler.CreatePin)
			pinsGroup.PUT("/:id", RequireAdmin(), handler.UpdatePin)
			pinsGroup.DELETE("/:id", RequireAdmin(), handler.DeletePin)
			pinsGroup.POST("/:id/explored", handler.SetExplored)
		}

		// ===============================
		// 分类与批量操作
		// ===============================
		categoriesGroup := api.Group("/categories")
		{
			categoriesGroup.GET("", handler.GetCategories)
			categoriesGroup.GET("/:type/mass-action", handler.GetMassAction)
			categoriesGroup.POST("/:type/mass-action", handler.ExecuteMassAction)
		}

		locationsGroup := api.Group("/locations")
		{
			locationsGroup.GET("", handler.GetLocations)
			locationsGroup.GET("/:id/focus", handler.FocusLocation)
		}

		// ===============================
		// 导入导出与同步
		// ===============================
		api.GET("/export", handler.ExportCSV)
		api.POST("/import", handler.ImportCSV)
		api.POST("/sync", handler.SyncSeed)

		// ===============================
		// 大贤者
		// ===============================
		api.POST("/sage", RateLimitByIP(limiter, sageRateLimit, sageRateWindow), handler.AskSage)

		settingsGroup := api.Group("/settings", RequireAdmin())
		{
			settingsGroup.GET("/sage", handler.GetSageSettings)
			settingsGroup.PUT("/sage", handler.UpdateSageSettings)
		}

		api.GET("/ws/status", handler.GetViewportStatus)
	}

	return r, handler, nil
}
