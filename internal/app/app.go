// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/DragonSwordMap/internal/api"
	"github.com/Corphon/DragonSwordMap/internal/auth"
	"github.com/Corphon/DragonSwordMap/internal/config"
	"github.com/Corphon/DragonSwordMap/internal/di"
	_ "github.com/Corphon/DragonSwordMap/internal/llm/providers/google"
	"github.com/Corphon/DragonSwordMap/internal/services"
	"github.com/Corphon/DragonSwordMap/internal/storage"
	"github.com/Corphon/DragonSwordMap/internal/utils"
	"github.com/Corphon/DragonSwordMap/internal/viewport"
)

// TokenTTL 管理员令牌有效期
const TokenTTL = 12 * time.Hour

// httpServer 便于测试替换的服务器接口
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例
type App struct {
	config   *config.Config
	router   http.Handler
	handler  *api.Handler
	server   httpServer
	stopChan chan os.Signal
}

var (
	instance *App
	mu       sync.Mutex
)

// GetApp 获取应用单例
func GetApp() *App {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 按顺序初始化配置、日志、服务和路由
func Initialize(cfg *config.Config) error {
	a := GetApp()
	a.config = cfg

	if err := config.InitConfig(cfg); err != nil {
		return fmt.Errorf("初始化配置系统失败: %w", err)
	}
	if err := initLogger(cfg.LogDir, cfg.LogLevel); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	if err := InitServices(cfg); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, handler, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	a.router = router
	a.handler = handler
	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// initLogger 日志文件按启动日期命名
func initLogger(logDir, level string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("app_%s.log", time.Now().Format("20060102")))
	return utils.InitLogger(logFile, utils.ParseLogLevel(level))
}

// InitServices 创建全部服务并注册到全局容器（按依赖顺序）
func InitServices(cfg *config.Config) error {
	container := di.GetContainer()
	metrics := utils.GetMetricsCollector()

	profile := cfg.Profile
	seedURL := cfg.SeedURL
	sageProvider := "google"
	sageConfig := map[string]string{
		"api_key": cfg.GeminiAPIKey,
		"model":   cfg.GeminiModel,
	}
	// 运行时配置优先，管理员可能已在设置中修改
	if appCfg := config.GetCurrentConfig(); appCfg != nil {
		if appCfg.Profile != "" {
			profile = appCfg.Profile
		}
		seedURL = appCfg.SeedURL
		if appCfg.SageProvider != "" {
			sageProvider = appCfg.SageProvider
		}
		if appCfg.SageConfig != nil {
			sageConfig = appCfg.SageConfig
		}
	}

	store, err := storage.Open(storage.Backend(cfg.StorageBackend), cfg.DataDir, profile)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}

	pins := services.NewPinService(store,
		services.WithPinMetrics(metrics),
		services.WithPinLogger(utils.GetLogger().Module("pins")),
	)
	if err := pins.Hydrate(); err != nil {
		store.Close()
		return fmt.Errorf("加载标记失败: %w", err)
	}

	var seed *services.SeedService
	if seedURL != "" {
		seed = services.NewSeedService(services.SeedConfig{
			URL:      seedURL,
			Timeout:  cfg.SeedTimeout,
			CacheTTL: cfg.SeedCacheTTL,
		}, metrics)
	}

	reset := services.NewResetService(store, pins, cfg.Location, metrics)

	tokens, err := auth.NewTokenConfig(cfg.AuthSecretKey, TokenTTL)
	if err != nil {
		store.Close()
		return fmt.Errorf("创建令牌配置失败: %w", err)
	}
	gate := auth.NewAdminGate(cfg.AdminHash)

	session := services.NewSessionService(pins, reset, seed, gate, tokens, time.Now)
	sage := services.NewSageService(sageProvider, sageConfig, metrics)

	vp := viewport.DefaultConfig()
	if cfg.MinScale > 0 && cfg.MaxScale >= cfg.MinScale {
		vp.Limits = viewport.ScaleLimits{Min: cfg.MinScale, Max: cfg.MaxScale}
	}

	container.Register(di.ServiceConfig, cfg)
	container.Register(di.ServiceMetrics, metrics)
	container.Register(di.ServiceStore, store)
	container.Register(di.ServicePins, pins)
	container.Register(di.ServiceReset, reset)
	if seed != nil {
		container.Register(di.ServiceSeed, seed)
	}
	container.Register(di.ServiceTokens, tokens)
	container.Register(di.ServiceSession, session)
	container.Register(di.ServiceSage, sage)
	container.Register(di.ServiceViewport, vp)

	utils.GetLogger().Info("服务初始化完成", map[string]interface{}{
		"backend":    cfg.StorageBackend,
		"profile":    profile,
		"pins":       pins.Len(),
		"sage_ready": sage.Ready(),
	})
	return nil
}

// Run 启动服务器并等待停止信号
func Run() error {
	a := GetApp()
	if a.server == nil {
		return errors.New("应用未初始化")
	}

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	errChan := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if a.config != nil {
		log.Printf("🌐 服务器启动在端口 %s", a.config.Port)
	}

	select {
	case err := <-errChan:
		a.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-a.stopChan:
	}

	log.Println("🛑 正在关闭服务器...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.handler != nil {
		a.handler.Hub().Shutdown()
	}
	if err := a.server.Shutdown(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	a.cleanup()
	log.Println("✅ 服务器优雅关闭完成")
	return nil
}

// cleanup 释放存储和日志文件，配置在每次修改时已落盘
func (a *App) cleanup() {
	container := di.GetContainer()
	if store, err := di.Resolve[storage.KeyValueStore](container, di.ServiceStore); err == nil {
		if err := store.Close(); err != nil {
			log.Printf("⚠️ 关闭存储失败: %v", err)
		}
	}
	_ = utils.GetLogger().Close()
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.Config {
	return a.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 检查是否处于调试模式
func IsDebugMode() bool {
	mu.Lock()
	a := instance
	mu.Unlock()
	return a != nil && a.config != nil && a.config.DebugMode
}
