// Package bot Telegram 管理员命令 Bot
package bot

import (
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/allowance-campaign/internal/bot/handlers"
	"github.com/smysle/allowance-campaign/internal/bot/middleware"
	"github.com/smysle/allowance-campaign/internal/config"
	"github.com/smysle/allowance-campaign/pkg/logger"
)

// Bot Telegram Bot 实例
type Bot struct {
	*tele.Bot
	cfg *config.TelegramConfig
	h   *handlers.Handler
}

// New 创建新的 Bot 实例
func New(cfg *config.TelegramConfig, h *handlers.Handler) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error().Err(err).Msg("Bot 错误")
		},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		Bot: b,
		cfg: cfg,
		h:   h,
	}

	// 注册中间件
	bot.registerMiddleware()

	// 注册处理器
	bot.registerHandlers()

	// 设置命令列表
	bot.setCommands()

	return bot, nil
}

// registerMiddleware 注册中间件
func (b *Bot) registerMiddleware() {
	b.Use(middleware.Logger())
	b.Use(middleware.Recover())
	b.Use(middleware.AntiFlood(2))
}

// registerHandlers 注册所有处理器
func (b *Bot) registerHandlers() {
	adminGroup := b.Group()
	adminGroup.Use(middleware.AdminOnly(b.cfg.AdminChatID))

	adminGroup.Handle("/start", b.h.Start)
	adminGroup.Handle("/stats", b.h.Stats)
	adminGroup.Handle("/top", b.h.Top)
	adminGroup.Handle("/countdown", b.h.Countdown)
	adminGroup.Handle("/backup", b.h.Backup)
}

// setCommands 设置命令列表
func (b *Bot) setCommands() {
	cmds := []tele.Command{
		{Text: "stats", Description: "活动概况"},
		{Text: "top", Description: "推荐排行榜"},
		{Text: "countdown", Description: "倒计时状态"},
		{Text: "backup", Description: "立即写入数据快照"},
	}

	if err := b.SetCommands(cmds); err != nil {
		logger.Warn().Err(err).Msg("设置命令列表失败")
	}
}

// Run 开始轮询，阻塞直到 Stop
func (b *Bot) Run() {
	logger.Info().Str("bot", b.Me.Username).Msg("Telegram 命令 Bot 已启动")
	b.Start()
}
