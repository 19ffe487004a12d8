// Package handlers 管理员命令处理器
package handlers

import (
	"bytes"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/allowance-campaign/internal/service"
	"github.com/smysle/allowance-campaign/pkg/imggen"
	"github.com/smysle/allowance-campaign/pkg/logger"
	"github.com/smysle/allowance-campaign/pkg/utils"
)

// captionLimit Telegram 图片说明的字符上限
const captionLimit = 1024

// Countdown 倒计时查询
type Countdown interface {
	Snapshot() service.CountdownSnapshot
}

// Leaderboard 排行榜与概况
type Leaderboard interface {
	Top(limit int) []service.LeaderboardEntry
	RenderPNG(limit int) ([]byte, error)
	Stats() service.CampaignStats
}

// Backupper 手动快照
type Backupper interface {
	Backup() (*service.BackupResult, error)
}

// Handler 命令处理器
type Handler struct {
	countdown   Countdown
	leaderboard Leaderboard
	backup      Backupper
}

// New 创建命令处理器，backup 可为 nil
func New(countdown Countdown, leaderboard Leaderboard, backup Backupper) *Handler {
	return &Handler{
		countdown:   countdown,
		leaderboard: leaderboard,
		backup:      backup,
	}
}

// Start /start 帮助信息
func (h *Handler) Start(c tele.Context) error {
	return c.Send(strings.Join([]string{
		"<b>Allowance Campaign</b>",
		"/stats 活动概况",
		"/top [n] 推荐排行榜",
		"/countdown 倒计时状态",
		"/backup 立即写入数据快照",
	}, "\n"), tele.ModeHTML)
}

// Stats /stats
func (h *Handler) Stats(c tele.Context) error {
	return c.Send(FormatStats(h.leaderboard.Stats()), tele.ModeHTML)
}

// Top /top [n] 发送排行榜图片，说明只列出图片中的条目，超出部分另发文本
func (h *Handler) Top(c tele.Context) error {
	limit := service.DefaultLeaderboardLimit
	if args := c.Args(); len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}
	limit = service.NormalizeLimit(limit)

	entries := h.leaderboard.Top(limit)

	data, err := h.leaderboard.RenderPNG(limit)
	if err != nil {
		logger.Warn().Err(err).Msg("生成排行榜图片失败")
		return c.Send(FormatTop(entries), tele.ModeHTML)
	}

	pictured := entries
	if len(pictured) > imggen.MaxItems {
		pictured = pictured[:imggen.MaxItems]
	}
	caption := FormatTop(pictured)
	if utf8.RuneCountInString(caption) > captionLimit {
		caption = "<b>🏆 推荐排行榜</b>"
	}

	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(data)),
		Caption: caption,
	}
	if err := c.Send(photo, tele.ModeHTML); err != nil {
		logger.Warn().Err(err).Int("limit", limit).Msg("发送排行榜图片失败，改发文本")
		return c.Send(FormatTop(entries), tele.ModeHTML)
	}
	if len(entries) > len(pictured) {
		return c.Send(FormatTop(entries), tele.ModeHTML)
	}
	return nil
}

// Countdown /countdown
func (h *Handler) Countdown(c tele.Context) error {
	return c.Send(FormatCountdown(h.countdown.Snapshot()), tele.ModeHTML)
}

// Backup /backup
func (h *Handler) Backup(c tele.Context) error {
	if h.backup == nil {
		return c.Send("⚠️ 数据快照未启用")
	}

	result, err := h.backup.Backup()
	if err != nil {
		logger.Error().Err(err).Msg("手动快照失败")
		return c.Send("❌ 快照失败: " + err.Error())
	}
	return c.Send(fmt.Sprintf("✅ 快照完成\n文件: %s\n记录: %d\n大小: %d bytes",
		result.Filename, result.Records, result.Size))
}

// FormatStats 活动概况文本
func FormatStats(s service.CampaignStats) string {
	return fmt.Sprintf("<b>📊 活动概况</b>\n用户: %d\n被推荐用户: %d\n授权事件: %d\n推荐码: %d",
		s.Users, s.Referred, s.Approvals, s.Codes)
}

// FormatTop 排行榜文本
func FormatTop(entries []service.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "📊 暂无推荐数据"
	}

	var b strings.Builder
	b.WriteString("<b>🏆 推荐排行榜</b>\n")
	for _, e := range entries {
		code := e.Code
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(&b, "%d. <code>%s</code> (%s) %d\n",
			e.Rank, html.EscapeString(e.Address), html.EscapeString(code), e.Referrals)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatCountdown 倒计时文本
func FormatCountdown(s service.CountdownSnapshot) string {
	return fmt.Sprintf("<b>⏳ 倒计时</b>\n截止: %s (%s)\n剩余: %d天 %d时 %d分 %d秒\n服务器时间: %s",
		s.EndDate, s.Source, s.Days, s.Hours, s.Minutes, s.Seconds,
		utils.FormatMillisISO(s.ServerTime))
}
