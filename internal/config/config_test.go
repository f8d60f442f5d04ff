package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("SEED_TIMEOUT", "3")
	t.Setenv("SEED_CACHE_TTL", "90s")
	t.Setenv("TIMEZONE", "Asia/Seoul")
	t.Setenv("MAX_SCALE", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultSeedURL, cfg.SeedURL)
	assert.Equal(t, DefaultAdminHash, cfg.AdminHash)
	assert.Equal(t, 3*time.Second, cfg.SeedTimeout)
	assert.Equal(t, 90*time.Second, cfg.SeedCacheTTL)
	assert.Equal(t, "Asia/Seoul", cfg.Location.String())
	assert.Equal(t, 0.2, cfg.MinScale)
	assert.Equal(t, 6.0, cfg.MaxScale)
	assert.DirExists(t, cfg.DataDir)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))

	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("MIN_SCALE", "5")
	t.Setenv("MAX_SCALE", "1")
	_, err = Load()
	assert.Error(t, err)
}

func TestInitConfigSealsAPIKey(t *testing.T) {
	dir := t.TempDir()
	base := &Config{
		Port:          "8080",
		DataDir:       dir,
		Profile:       "default",
		SeedURL:       DefaultSeedURL,
		AuthSecretKey: "secret",
		GeminiAPIKey:  "plain-key",
		GeminiModel:   "gemini-2.0-flash",
	}
	require.NoError(t, InitConfig(base))

	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plain-key")

	var onDisk AppConfig
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Contains(t, onDisk.SageConfig["api_key"], "enc:")

	// 重新加载后密钥可解密
	base.GeminiAPIKey = ""
	require.NoError(t, InitConfig(base))
	assert.Equal(t, "plain-key", GetCurrentConfig().SageConfig["api_key"])

	require.NoError(t, UpdateSageConfig("google", map[string]string{"api_key": "k2", "model": "m"}))
	assert.Equal(t, "k2", GetCurrentConfig().SageConfig["api_key"])
}
