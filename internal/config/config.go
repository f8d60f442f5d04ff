// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/Corphon/DragonSwordMap/internal/utils"
)

// DefaultSeedURL 官方发布的标记数据
const DefaultSeedURL = "https://raw.githubusercontent.com/Duritz-Labs/DragonSwordMaps/main/MapData_Relese/dragonsword_pins_Relese.csv"

// DefaultAdminHash 管理员密码的 base64 形式
const DefaultAdminHash = "MTAwNTE="

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
	sealKey       string
)

// AppConfig 保存在 DataDir/config.json 中、可在运行时修改的配置
type AppConfig struct {
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	StaticDir string `json:"static_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	Profile string `json:"profile"`
	SeedURL string `json:"seed_url"`

	// 大贤者对话相关配置，api_key 以加密形式落盘
	SageProvider string            `json:"sage_provider"`
	SageConfig   map[string]string `json:"sage_config"`
}

// Config 存储应用配置
type Config struct {
	Port      string
	DataDir   string
	StaticDir string
	LogDir    string
	LogLevel  string
	DebugMode bool

	StorageBackend string
	Profile        string

	SeedURL      string
	SeedTimeout  time.Duration
	SeedCacheTTL time.Duration

	Timezone string
	Location *time.Location

	AdminHash     string
	AuthSecretKey string

	GeminiAPIKey string
	GeminiModel  string

	MinScale float64
	MaxScale float64
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		DataDir:        getEnvPath("DATA_DIR", "data"),
		StaticDir:      getEnv("STATIC_DIR", "static"),
		LogDir:         getEnvPath("LOG_DIR", "logs"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DebugMode:      getEnvBool("DEBUG_MODE", false),
		StorageBackend: getEnv("STORAGE_BACKEND", "file"),
		Profile:        getEnv("PROFILE", "default"),
		SeedURL:        getEnv("SEED_URL", DefaultSeedURL),
		SeedTimeout:    getEnvDuration("SEED_TIMEOUT", 15*time.Second),
		SeedCacheTTL:   getEnvDuration("SEED_CACHE_TTL", 10*time.Minute),
		Timezone:       getEnv("TIMEZONE", "Local"),
		AdminHash:      getEnv("ADMIN_HASH", DefaultAdminHash),
		AuthSecretKey:  getEnv("AUTH_SECRET_KEY", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		MinScale:       getEnvFloat("MIN_SCALE", 0.2),
		MaxScale:       getEnvFloat("MAX_SCALE", 4.0),
	}

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("无效的时区 %q: %w", config.Timezone, err)
	}
	config.Location = loc

	if config.MinScale <= 0 || config.MinScale > config.MaxScale {
		return nil, fmt.Errorf("无效的缩放范围: MIN_SCALE=%v MAX_SCALE=%v", config.MinScale, config.MaxScale)
	}

	if config.AuthSecretKey == "" {
		log.Println("警告: 未设置 AUTH_SECRET_KEY，管理员令牌在重启后失效")
	}
	if config.GeminiAPIKey == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置 GEMINI_API_KEY，大贤者将只返回默认回复")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration 支持 "15s" 形式，也接受纯数字秒数
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	fmt.Printf("警告: 无法解析 %s=%q，使用默认值 %s\n", key, value, defaultValue)
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		fmt.Printf("警告: 无法解析 %s=%q，使用默认值 %v\n", key, value, defaultValue)
		return defaultValue
	}
	return f
}

// InitConfig 初始化配置管理器
func InitConfig(baseConfig *Config) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(baseConfig.DataDir, "config.json")
	sealKey = baseConfig.AuthSecretKey

	currentConfig = &AppConfig{
		Port:         baseConfig.Port,
		DataDir:      baseConfig.DataDir,
		StaticDir:    baseConfig.StaticDir,
		LogDir:       baseConfig.LogDir,
		DebugMode:    baseConfig.DebugMode,
		Profile:      baseConfig.Profile,
		SeedURL:      baseConfig.SeedURL,
		SageProvider: "google",
		SageConfig: map[string]string{
			"api_key": baseConfig.GeminiAPIKey,
			"model":   baseConfig.GeminiModel,
		},
	}

	// 尝试从文件加载已保存的配置
	if data, err := os.ReadFile(configFile); err == nil {
		var savedConfig AppConfig
		if json.Unmarshal(data, &savedConfig) == nil {
			// 保留文件中的大贤者设置，基础配置以环境变量为准
			savedConfig.Port = baseConfig.Port
			savedConfig.DataDir = baseConfig.DataDir
			savedConfig.StaticDir = baseConfig.StaticDir
			savedConfig.LogDir = baseConfig.LogDir
			savedConfig.DebugMode = baseConfig.DebugMode
			if savedConfig.Profile == "" {
				savedConfig.Profile = baseConfig.Profile
			}
			if savedConfig.SeedURL == "" {
				savedConfig.SeedURL = baseConfig.SeedURL
			}
			if savedConfig.SageConfig == nil {
				savedConfig.SageConfig = map[string]string{}
			}

			key, err := utils.OpenSecret(savedConfig.SageConfig["api_key"], sealKey)
			if err != nil {
				log.Printf("警告: 无法解密已保存的 API 密钥，改用环境变量: %v", err)
				key = ""
			}
			if key == "" {
				key = baseConfig.GeminiAPIKey
			}
			savedConfig.SageConfig["api_key"] = key
			if savedConfig.SageConfig["model"] == "" {
				savedConfig.SageConfig["model"] = baseConfig.GeminiModel
			}

			currentConfig = &savedConfig
		}
	}

	// 保存初始配置到文件
	return saveLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return nil
	}

	configCopy := *currentConfig
	configCopy.SageConfig = make(map[string]string, len(currentConfig.SageConfig))
	for k, v := range currentConfig.SageConfig {
		configCopy.SageConfig[k] = v
	}
	return &configCopy
}

// UpdateSageConfig 更新大贤者配置
func UpdateSageConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.SageProvider = provider
	currentConfig.SageConfig = config

	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	onDisk := *currentConfig
	onDisk.SageConfig = make(map[string]string, len(currentConfig.SageConfig))
	for k, v := range currentConfig.SageConfig {
		onDisk.SageConfig[k] = v
	}
	if key := onDisk.SageConfig["api_key"]; key != "" {
		sealed, err := utils.SealSecret(key, sealKey)
		if err != nil {
			return fmt.Errorf("加密 API 密钥失败: %w", err)
		}
		onDisk.SageConfig["api_key"] = sealed
	}

	// 序列化并保存
	data, err := json.MarshalIndent(&onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
