// Package service 倒计时服务
package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/smysle/allowance-campaign/internal/config"
	"github.com/smysle/allowance-campaign/internal/database/repository"
	"github.com/smysle/allowance-campaign/internal/metrics"
	"github.com/smysle/allowance-campaign/pkg/logger"
	"github.com/smysle/allowance-campaign/pkg/utils"
)

// ErrInvalidTarget 倒计时目标无效或不在未来
var ErrInvalidTarget = errors.New("invalid target")

const (
	msSecond = int64(1000)
	msMinute = 60 * msSecond
	msHour   = 60 * msMinute
	msDay    = 24 * msHour

	countdownTargetKey = "countdown:target"

	SourceConfigured = "configured"
	SourceFallback   = "fallback"
)

// CountdownBreakdown 剩余时间拆分
type CountdownBreakdown struct {
	RemainingSeconds int64 `json:"remainingSeconds"`
	Days             int64 `json:"days"`
	Hours            int64 `json:"hours"`
	Minutes          int64 `json:"minutes"`
	Seconds          int64 `json:"seconds"`
}

// CountdownSnapshot GET /api/countdown 响应
type CountdownSnapshot struct {
	EndDate          string `json:"endDate"`
	Target           int64  `json:"target"`
	ServerTime       int64  `json:"serverTime"`
	RemainingSeconds int64  `json:"remainingSeconds"`
	Days             int64  `json:"days"`
	Hours            int64  `json:"hours"`
	Minutes          int64  `json:"minutes"`
	Seconds          int64  `json:"seconds"`
	FallbackDays     int    `json:"fallbackDays"`
	Source           string `json:"source"`
}

// OverrideInput POST /api/countdown 请求体
type OverrideInput struct {
	Target      *string  `json:"target"`
	DaysFromNow *float64 `json:"daysFromNow"`
	Clear       bool     `json:"clear"`
}

// CountdownService 倒计时服务
type CountdownService struct {
	repo  *repository.CountdownRepository
	cache *cache.Cache
	mu    sync.Mutex

	configured   int64
	configuredOK bool
	fallbackDays int

	now func() time.Time
}

// NewCountdownService 创建倒计时服务
// 覆盖值只在启动时读取一次，之后以内存缓存为准
func NewCountdownService(cfg *config.CountdownConfig, repo *repository.CountdownRepository) *CountdownService {
	return newCountdownService(cfg, repo, time.Now)
}

func newCountdownService(cfg *config.CountdownConfig, repo *repository.CountdownRepository, now func() time.Time) *CountdownService {
	s := &CountdownService{
		repo:         repo,
		cache:        utils.NewValueCache(),
		fallbackDays: cfg.FallbackDays,
		now:          now,
	}

	if t, ok := utils.ParseISOTime(cfg.EndDate); ok {
		s.configured = t.UnixMilli()
		s.configuredOK = true
	} else {
		logger.Warn().Str("end_date", cfg.EndDate).Int("fallback_days", cfg.FallbackDays).
			Msg("倒计时截止时间无法解析，使用回退天数")
	}

	if target, ok := repo.Get(); ok {
		logger.Info().Str("target", utils.FormatMillisISO(target)).Msg("已加载倒计时覆盖值")
		s.cache.Set(countdownTargetKey, target, cache.NoExpiration)
	} else {
		s.cache.Set(countdownTargetKey, s.ComputeDefaultTarget(), cache.NoExpiration)
	}

	return s
}

// ComputeDefaultTarget 配置的截止时间，无法解析时为当前时间加回退天数
func (s *CountdownService) ComputeDefaultTarget() int64 {
	if s.configuredOK {
		return s.configured
	}
	return s.now().UnixMilli() + int64(s.fallbackDays)*msDay
}

// Source 默认目标的来源
func (s *CountdownService) Source() string {
	if s.configuredOK {
		return SourceConfigured
	}
	return SourceFallback
}

// CurrentTarget 当前倒计时目标
func (s *CountdownService) CurrentTarget() int64 {
	if v, ok := s.cache.Get(countdownTargetKey); ok {
		return v.(int64)
	}
	target := s.ComputeDefaultTarget()
	s.cache.Set(countdownTargetKey, target, cache.NoExpiration)
	return target
}

// Breakdown 计算剩余的天、时、分、秒
func Breakdown(target, now int64) CountdownBreakdown {
	remaining := target - now
	if remaining < 0 {
		remaining = 0
	}

	b := CountdownBreakdown{RemainingSeconds: remaining / msSecond}
	rest := remaining
	b.Days = rest / msDay
	rest -= b.Days * msDay
	b.Hours = rest / msHour
	rest -= b.Hours * msHour
	b.Minutes = rest / msMinute
	rest -= b.Minutes * msMinute
	b.Seconds = rest / msSecond
	return b
}

// Snapshot 当前倒计时状态
func (s *CountdownService) Snapshot() CountdownSnapshot {
	now := s.now().UnixMilli()
	target := s.CurrentTarget()
	b := Breakdown(target, now)

	return CountdownSnapshot{
		EndDate:          utils.FormatMillisISO(target),
		Target:           target,
		ServerTime:       now,
		RemainingSeconds: b.RemainingSeconds,
		Days:             b.Days,
		Hours:            b.Hours,
		Minutes:          b.Minutes,
		Seconds:          b.Seconds,
		FallbackDays:     s.fallbackDays,
		Source:           s.Source(),
	}
}

// Apply 处理管理端请求：clear 优先，其次设置覆盖值
func (s *CountdownService) Apply(in OverrideInput) (int64, error) {
	if in.Clear {
		return s.ClearOverride()
	}
	return s.SetOverride(in)
}

// SetOverride 设置覆盖值，daysFromNow 优先于 target，结果必须在未来
func (s *CountdownService) SetOverride(in OverrideInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()

	var target int64
	resolved := false
	if in.Target != nil && strings.TrimSpace(*in.Target) != "" {
		if t, ok := utils.ParseISOTime(*in.Target); ok {
			target = t.UnixMilli()
			resolved = true
		}
	}
	if in.DaysFromNow != nil {
		offset := int64(*in.DaysFromNow * float64(msDay))
		target = now + offset
		resolved = true
	}

	if !resolved || target <= now {
		metrics.IncCountdownUpdate("rejected")
		return 0, ErrInvalidTarget
	}

	if err := s.repo.Set(target); err != nil {
		return 0, fmt.Errorf("保存倒计时覆盖值失败: %w", err)
	}
	s.cache.Set(countdownTargetKey, target, cache.NoExpiration)
	metrics.IncCountdownUpdate("set")

	logger.Info().Str("target", utils.FormatMillisISO(target)).Msg("倒计时目标已更新")
	return target, nil
}

// ClearOverride 删除覆盖值，恢复为此刻重新计算的默认目标
func (s *CountdownService) ClearOverride() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Clear(); err != nil {
		return 0, fmt.Errorf("清除倒计时覆盖值失败: %w", err)
	}
	target := s.ComputeDefaultTarget()
	s.cache.Set(countdownTargetKey, target, cache.NoExpiration)
	metrics.IncCountdownUpdate("clear")

	logger.Info().Str("target", utils.FormatMillisISO(target)).Str("source", s.Source()).Msg("倒计时覆盖值已清除")
	return target, nil
}
