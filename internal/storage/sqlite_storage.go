// internal/storage/sqlite_storage.go
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStorage 以单表 kv 形式保存数据的存储实现
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage 打开（必要时创建）数据库文件
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建存储目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// modernc sqlite 单连接写入最稳定
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据表失败: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取键 %s 失败: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStorage) Set(key, value string) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO kv(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)`, key, value); err != nil {
		return fmt.Errorf("写入键 %s 失败: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("删除键 %s 失败: %w", key, err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
