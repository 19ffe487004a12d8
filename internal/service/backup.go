// Package service 数据快照服务
package service

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/internal/database/repository"
	"github.com/smysle/allowance-campaign/pkg/logger"
)

const backupVersion = "1.0"

// BackupService 数据快照服务
type BackupService struct {
	store     *database.Store
	users     *repository.UserRepository
	codes     *repository.CodeRepository
	approvals *repository.ApprovalRepository
	countdown *repository.CountdownRepository
	backupDir string
	now       func() time.Time
}

// BackupData 快照内容
type BackupData struct {
	Version           string             `json:"version"`
	CreatedAt         time.Time          `json:"created_at"`
	Users             []*models.User     `json:"users"`
	RefCodes          models.RefCodes    `json:"ref_codes"`
	Approvals         []*models.Approval `json:"approvals"`
	CountdownOverride *int64             `json:"countdown_override,omitempty"`
}

// BackupResult 快照结果
type BackupResult struct {
	Filename string
	FilePath string
	Size     int64
	Duration time.Duration
	Records  int
}

// BackupInfo 快照文件信息
type BackupInfo struct {
	Filename  string
	Size      int64
	CreatedAt time.Time
}

// NewBackupService 创建数据快照服务
func NewBackupService(store *database.Store, backupDir string) *BackupService {
	if backupDir == "" {
		backupDir = "./backups"
	}

	return &BackupService{
		store:     store,
		users:     repository.NewUserRepository(store),
		codes:     repository.NewCodeRepository(store),
		approvals: repository.NewApprovalRepository(store),
		countdown: repository.NewCountdownRepository(store),
		backupDir: backupDir,
		now:       time.Now,
	}
}

// Backup 执行快照，输出 gzip 压缩的 JSON
func (s *BackupService) Backup() (*BackupResult, error) {
	startTime := s.now()

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("创建备份目录失败: %w", err)
	}

	data := BackupData{
		Version:   backupVersion,
		CreatedAt: startTime.UTC(),
	}
	_ = s.store.Transact(func() error {
		data.Users = s.users.Load()
		data.RefCodes = s.codes.All()
		data.Approvals = s.approvals.Load()
		if target, ok := s.countdown.Get(); ok {
			data.CountdownOverride = &target
		}
		return nil
	})

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化失败: %w", err)
	}

	filename := fmt.Sprintf("backup_%s.json.gz", startTime.UTC().Format("20060102_150405"))
	filePath := filepath.Join(s.backupDir, filename)

	size, err := writeCompressed(filePath, jsonData)
	if err != nil {
		return nil, err
	}

	records := len(data.Users) + len(data.RefCodes) + len(data.Approvals)
	logger.Info().
		Str("file", filename).
		Int64("size", size).
		Int("records", records).
		Msg("数据快照完成")

	return &BackupResult{
		Filename: filename,
		FilePath: filePath,
		Size:     size,
		Duration: time.Since(startTime),
		Records:  records,
	}, nil
}

// writeCompressed 写入压缩文件
func writeCompressed(path string, data []byte) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("创建文件失败: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if _, err := gz.Write(data); err != nil {
		return 0, fmt.Errorf("压缩写入失败: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("压缩写入失败: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Restore 从快照恢复全部集合和倒计时覆盖值
// 运行中的倒计时缓存不会刷新，恢复后需要重启进程
func (s *BackupService) Restore(filePath string) (*BackupData, error) {
	data, err := readCompressed(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取备份文件失败: %w", err)
	}

	var backup BackupData
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("解析备份数据失败: %w", err)
	}

	err = s.store.Transact(func() error {
		if err := s.users.SaveAll(backup.Users); err != nil {
			return err
		}
		if err := s.codes.SaveAll(backup.RefCodes); err != nil {
			return err
		}
		if err := s.approvals.SaveAll(backup.Approvals); err != nil {
			return err
		}
		if backup.CountdownOverride != nil {
			return s.countdown.Set(*backup.CountdownOverride)
		}
		return s.countdown.Clear()
	})
	if err != nil {
		return nil, fmt.Errorf("恢复数据失败: %w", err)
	}

	logger.Info().
		Int("users", len(backup.Users)).
		Int("codes", len(backup.RefCodes)).
		Int("approvals", len(backup.Approvals)).
		Msg("数据恢复完成")

	return &backup, nil
}

// readCompressed 读取压缩文件
func readCompressed(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// ListBackups 列出所有快照，按时间倒序
func (s *BackupService) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// CleanOldBackups 清理早于 keepDays 天的快照
func (s *BackupService) CleanOldBackups(keepDays int) (int, error) {
	if keepDays <= 0 {
		keepDays = 7 // 默认保留 7 天
	}

	backups, err := s.ListBackups()
	if err != nil {
		return 0, err
	}

	cutoff := s.now().AddDate(0, 0, -keepDays)
	deleted := 0

	for _, backup := range backups {
		if backup.CreatedAt.Before(cutoff) {
			filePath := filepath.Join(s.backupDir, backup.Filename)
			if err := os.Remove(filePath); err != nil {
				logger.Warn().Err(err).Str("file", backup.Filename).Msg("删除旧快照失败")
			} else {
				deleted++
				logger.Debug().Str("file", backup.Filename).Msg("已删除旧快照")
			}
		}
	}

	return deleted, nil
}
