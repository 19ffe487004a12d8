// Package database JSON 文件存储
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/internal/metrics"
	"github.com/smysle/allowance-campaign/pkg/logger"
)

// Collection 集合名称
type Collection string

const (
	CollectionUsers     Collection = "users"
	CollectionRefCodes  Collection = "refCodes"
	CollectionApprovals Collection = "approvals"
)

// countdownOverrideFile 倒计时覆盖值文件
const countdownOverrideFile = "countdown-override.json"

// collectionFiles 集合 -> 文件名及空集合初始内容
var collectionFiles = map[Collection]struct {
	name    string
	initial string
}{
	CollectionUsers:     {"users.json", "[]"},
	CollectionRefCodes:  {"ref-codes.json", "{}"},
	CollectionApprovals: {"approvals.json", "[]"},
}

// Collections 全部集合
var Collections = []Collection{CollectionUsers, CollectionRefCodes, CollectionApprovals}

// Store 整文件读写的 JSON 存储
// 同一进程内的读改写周期通过 Transact 串行化，多进程写入仍然是后写覆盖先写
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open 打开数据目录，不存在的集合文件写入空集合
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	s := &Store{dir: dir}
	for _, c := range Collections {
		path := s.Path(c)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(collectionFiles[c].initial), 0644); err != nil {
			return nil, fmt.Errorf("初始化 %s 失败: %w", c, err)
		}
	}

	logger.Info().Str("dir", dir).Msg("数据目录就绪")
	return s, nil
}

// Dir 数据目录
func (s *Store) Dir() string {
	return s.dir
}

// Path 集合文件路径
func (s *Store) Path(c Collection) string {
	return filepath.Join(s.dir, collectionFiles[c].name)
}

// Transact 在进程级互斥锁内执行一次读改写
func (s *Store) Transact(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Load 读取整个集合到 v
// 文件不存在或无法解析时返回 false，调用方使用空集合
func (s *Store) Load(c Collection, v interface{}) bool {
	data, err := os.ReadFile(s.Path(c))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("collection", string(c)).Msg("读取集合失败，使用空集合")
		}
		metrics.IncStoreFallback(string(c))
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn().Err(err).Str("collection", string(c)).Msg("解析集合失败，使用空集合")
		metrics.IncStoreFallback(string(c))
		return false
	}
	return true
}

// Save 序列化并覆盖整个集合
func (s *Store) Save(c Collection, v interface{}) error {
	if err := s.writeJSON(s.Path(c), v); err != nil {
		return fmt.Errorf("保存 %s 失败: %w", c, err)
	}
	return nil
}

// LoadCountdownOverride 读取倒计时覆盖值
func (s *Store) LoadCountdownOverride() (int64, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, countdownOverrideFile))
	if err != nil {
		return 0, false
	}

	var override models.CountdownOverride
	if err := json.Unmarshal(data, &override); err != nil || override.Target == nil {
		return 0, false
	}
	return int64(*override.Target), true
}

// SaveCountdownOverride 保存倒计时覆盖值，target 为 nil 时删除文件
func (s *Store) SaveCountdownOverride(target *int64) error {
	path := filepath.Join(s.dir, countdownOverrideFile)
	if target == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("删除倒计时覆盖值失败: %w", err)
		}
		return nil
	}

	if err := s.writeJSON(path, map[string]int64{"target": *target}); err != nil {
		return fmt.Errorf("保存倒计时覆盖值失败: %w", err)
	}
	return nil
}

// writeJSON 写临时文件后 rename，避免读到写了一半的文件
func (s *Store) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
