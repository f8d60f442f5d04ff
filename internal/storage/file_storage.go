// internal/storage/file_storage.go
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileStorage 每个键一个文件的存储实现
type FileStorage struct {
	BaseDir string

	// 并发控制
	fileLocks sync.Map // 文件级别锁 path -> *sync.RWMutex

	// 读缓存，写入和删除时失效
	cache *cache.Cache
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	return &FileStorage{
		BaseDir: baseDir,
		// cleanupInterval 为 0 时不启动后台清理协程，过期条目在读取时忽略
		cache: cache.New(5*time.Minute, 0),
	}, nil
}

// 获取文件锁
func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (fs *FileStorage) pathFor(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("非法的存储键: %q", key)
	}
	return filepath.Join(fs.BaseDir, key+".json"), nil
}

// Get 读取键值
func (fs *FileStorage) Get(key string) (string, bool, error) {
	fullPath, err := fs.pathFor(key)
	if err != nil {
		return "", false, err
	}

	if v, found := fs.cache.Get(fullPath); found {
		return v.(string), true, nil
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取文件失败: %w", err)
	}

	value := string(content)
	fs.cache.Set(fullPath, value, cache.DefaultExpiration)
	return value, true, nil
}

// Set 原子性写入键值
func (fs *FileStorage) Set(key, value string) error {
	fullPath, err := fs.pathFor(key)
	if err != nil {
		return err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, []byte(value), 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			fmt.Printf("Warning: failed to clean up temporary file %s after rename failure: %v\n", tempPath, removeErr)
		}
		return fmt.Errorf("保存文件失败: %w", err)
	}

	fs.cache.Set(fullPath, value, cache.DefaultExpiration)
	return nil
}

// Delete 删除键
func (fs *FileStorage) Delete(key string) error {
	fullPath, err := fs.pathFor(key)
	if err != nil {
		return err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	fs.cache.Delete(fullPath)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除文件失败: %w", err)
	}
	return nil
}

// Close 文件存储无需释放资源
func (fs *FileStorage) Close() error {
	fs.cache.Flush()
	return nil
}
