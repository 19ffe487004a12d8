// Package scheduler 定时任务调度
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"

	"github.com/smysle/allowance-campaign/internal/config"
	"github.com/smysle/allowance-campaign/internal/service"
	"github.com/smysle/allowance-campaign/pkg/logger"
)

// Backupper 数据快照
type Backupper interface {
	Backup() (*service.BackupResult, error)
	CleanOldBackups(keepDays int) (int, error)
}

// Scheduler 定时任务调度器
type Scheduler struct {
	cron   *gocron.Scheduler
	cfg    *config.BackupConfig
	backup Backupper
}

// New 创建调度器，时间按 UTC 计算
func New(cfg *config.BackupConfig, backup Backupper) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SetMaxConcurrentJobs(1, gocron.RescheduleMode)

	return &Scheduler{
		cron:   s,
		cfg:    cfg,
		backup: backup,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	logger.Info().Msg("启动定时任务调度器")

	// 注册定时任务
	if err := s.registerJobs(); err != nil {
		return err
	}

	// 异步启动
	s.cron.StartAsync()
	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	logger.Info().Msg("停止定时任务调度器")
	s.cron.Stop()
}

// Jobs 已注册的任务数
func (s *Scheduler) Jobs() int {
	return s.cron.Len()
}

// registerJobs 注册所有定时任务
func (s *Scheduler) registerJobs() error {
	// 数据快照 - 默认每天凌晨 3 点
	if s.cfg.Enabled && s.backup != nil {
		if _, err := s.cron.Every(1).Day().At(s.cfg.At).Tag("backup").Do(s.runBackup); err != nil {
			return err
		}
		logger.Info().Str("at", s.cfg.At).Int("keep_days", s.cfg.KeepDays).Msg("已注册: 数据快照任务")
	}
	return nil
}

// runBackup 写快照并清理过期快照
func (s *Scheduler) runBackup() {
	logger.Info().Msg("执行定时任务: 数据快照")

	result, err := s.backup.Backup()
	if err != nil {
		logger.Error().Err(err).Msg("数据快照失败")
		return
	}

	deleted, err := s.backup.CleanOldBackups(s.cfg.KeepDays)
	if err != nil {
		logger.Warn().Err(err).Msg("清理旧快照失败")
	}

	logger.Info().
		Str("file", result.Filename).
		Dur("duration", result.Duration).
		Int("deleted", deleted).
		Msg("数据快照任务完成")
}
