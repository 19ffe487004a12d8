package notifier

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/allowance-campaign/internal/config"
	"github.com/smysle/allowance-campaign/pkg/logger"
)

// TelegramChannel 通过 Bot 私聊管理员
type TelegramChannel struct {
	bot    *tele.Bot
	chatID tele.ChatID
}

// NewTelegramChannel 创建 Telegram 渠道，只发消息不轮询
func NewTelegramChannel(cfg config.TelegramConfig) *TelegramChannel {
	ch := &TelegramChannel{chatID: tele.ChatID(cfg.AdminChatID)}
	if !cfg.Enabled() {
		return ch
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.BotToken,
		Offline: true,
		Client:  newTelegramHTTPClient(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("创建 Telegram Bot 失败，渠道已禁用")
		return ch
	}
	ch.bot = b
	return ch
}

// Name 渠道名
func (t *TelegramChannel) Name() string { return "telegram" }

// Enabled 需要 token 和管理员 chat id
func (t *TelegramChannel) Enabled() bool { return t.bot != nil }

// Send 发送 HTML 格式的摘要
func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	if t.bot == nil {
		return nil
	}
	return withContext(ctx, func() error {
		if _, err := t.bot.Send(t.chatID, FormatTelegram(msg), tele.ModeHTML, tele.NoPreview); err != nil {
			return fmt.Errorf("发送 Telegram 消息失败: %w", err)
		}
		return nil
	})
}

// Verify 调用 getMe 检查 token
func (t *TelegramChannel) Verify(ctx context.Context) error {
	if t.bot == nil {
		return nil
	}
	return withContext(ctx, func() error {
		if _, err := t.bot.Raw("getMe", nil); err != nil {
			return fmt.Errorf("telegram getMe 失败: %w", err)
		}
		return nil
	})
}

// FormatTelegram Telegram HTML 不支持表格，用加粗标题加等宽正文
func FormatTelegram(msg Message) string {
	return fmt.Sprintf("<b>%s</b>\n<pre>%s</pre>",
		html.EscapeString(msg.Subject),
		html.EscapeString(msg.Text),
	)
}

func newTelegramHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
