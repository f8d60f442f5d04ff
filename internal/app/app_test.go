package app

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DragonSwordMap/internal/config"
	"github.com/Corphon/DragonSwordMap/internal/di"
	"github.com/Corphon/DragonSwordMap/internal/services"
	"github.com/Corphon/DragonSwordMap/internal/storage"
)

// 测试前的设置工作
func setupTest(t *testing.T) string {
	t.Helper()
	instance = nil
	di.GetContainer().Clear()
	t.Cleanup(func() {
		instance = nil
		di.GetContainer().Clear()
	})
	return t.TempDir()
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Port:           "0",
		DataDir:        filepath.Join(dir, "data"),
		LogDir:         filepath.Join(dir, "logs"),
		LogLevel:       "info",
		StorageBackend: string(storage.BackendMemory),
		Profile:        "test",
		Location:       time.UTC,
		AdminHash:      config.DefaultAdminHash,
		AuthSecretKey:  "test-secret",
		MinScale:       0.2,
		MaxScale:       4,
	}
}

// 测试创建模拟服务器
type mockServer struct {
	ShutdownCalled bool
	release        chan struct{}
}

func (m *mockServer) ListenAndServe() error {
	<-m.release
	return nil
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	close(m.release)
	return nil
}

func TestGetAppIsSingleton(t *testing.T) {
	setupTest(t)

	app1 := GetApp()
	require.NotNil(t, app1)
	assert.Same(t, app1, GetApp())
	assert.NotNil(t, app1.stopChan)
}

func TestInitServicesRegistersEverything(t *testing.T) {
	dir := setupTest(t)
	cfg := testConfig(dir)

	require.NoError(t, InitServices(cfg))

	container := GetDIContainer()
	for _, name := range []string{
		di.ServiceConfig, di.ServiceMetrics, di.ServiceStore, di.ServicePins,
		di.ServiceReset, di.ServiceTokens, di.ServiceSession, di.ServiceSage, di.ServiceViewport,
	} {
		assert.True(t, container.Has(name), name)
	}
	// 未配置种子地址时不注册种子服务
	assert.False(t, container.Has(di.ServiceSeed))

	pins, err := di.Resolve[*services.PinService](container, di.ServicePins)
	require.NoError(t, err)
	assert.Equal(t, 0, pins.Len())

	sage, err := di.Resolve[*services.SageService](container, di.ServiceSage)
	require.NoError(t, err)
	assert.False(t, sage.Ready(), "no api key configured")
}

func TestInitialize(t *testing.T) {
	dir := setupTest(t)
	cfg := testConfig(dir)
	cfg.SeedURL = "https://seed.test/pins.csv"
	t.Cleanup(func() { GetApp().cleanup() })

	require.NoError(t, Initialize(cfg))

	app := GetApp()
	assert.Same(t, cfg, app.GetConfig())
	assert.NotNil(t, app.router)
	assert.NotNil(t, app.handler)
	assert.NotNil(t, app.server)
	assert.True(t, GetDIContainer().Has(di.ServiceSeed))

	assert.FileExists(t, filepath.Join(cfg.DataDir, "config.json"))
	files, err := os.ReadDir(cfg.LogDir)
	require.NoError(t, err)
	assert.NotEmpty(t, files, "log file should be created")
}

func TestRunStopsOnSignal(t *testing.T) {
	setupTest(t)

	srv := &mockServer{release: make(chan struct{})}
	instance = &App{
		config:   &config.Config{Port: "8081"},
		server:   srv,
		stopChan: make(chan os.Signal, 1),
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		instance.stopChan <- syscall.SIGTERM
	}()

	require.NoError(t, Run())
	assert.True(t, srv.ShutdownCalled)
}

func TestRunWithoutInitialize(t *testing.T) {
	setupTest(t)
	assert.Error(t, Run())
}

func TestIsDebugMode(t *testing.T) {
	setupTest(t)

	assert.False(t, IsDebugMode())

	instance = &App{}
	assert.False(t, IsDebugMode())

	instance.config = &config.Config{DebugMode: true}
	assert.True(t, IsDebugMode())

	instance.config.DebugMode = false
	assert.False(t, IsDebugMode())
}
