// internal/storage/kv.go
package storage

import (
	"fmt"
	"path/filepath"
	"sync"
)

// 持久化键名
const (
	KeyCustomPins      = "dragon_sword_custom_pins"
	KeyFadedPins       = "dragon_sword_faded_pins" // 旧版探索集合，只在加载时迁移一次
	KeyLastWeeklyReset = "dragon_sword_last_weekly_reset"
)

// KeyValueStore 字符串键值存储，每个 profile 一个实例
type KeyValueStore interface {
	// Get 返回键对应的值，键不存在时 ok 为 false
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	// Delete 删除键，键不存在不是错误
	Delete(key string) error
	Close() error
}

// Backend 存储后端类型
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Open 按后端类型打开 profile 对应的存储
func Open(backend Backend, dataDir, profile string) (KeyValueStore, error) {
	if profile == "" {
		profile = "default"
	}
	dir := filepath.Join(dataDir, "profiles", profile)

	switch backend {
	case BackendFile, "":
		return NewFileStorage(dir)
	case BackendSQLite:
		return NewSQLiteStorage(filepath.Join(dir, "pins.sqlite"))
	case BackendMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("未知的存储后端: %s", backend)
	}
}

// MemoryStorage 内存存储，用于测试和 CLI 的临时操作
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStorage) Close() error { return nil }
