package notifier

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/smysle/allowance-campaign/internal/config"
)

// EmailChannel SMTP 邮件通知
type EmailChannel struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

// NewEmailChannel 创建邮件渠道，配置不完整时渠道处于禁用状态
func NewEmailChannel(cfg config.SMTPConfig) *EmailChannel {
	ch := &EmailChannel{cfg: cfg}
	if cfg.Enabled() {
		ch.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
		ch.dialer.SSL = cfg.IsSecure()
	}
	return ch
}

// Name 渠道名
func (e *EmailChannel) Name() string { return "email" }

// Enabled 需要 host、用户名、密码和收件人
func (e *EmailChannel) Enabled() bool { return e.dialer != nil }

// Send 发送纯文本加 HTML 的邮件
func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if e.dialer == nil {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.Sender())
	m.SetHeader("To", e.cfg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	return withContext(ctx, func() error {
		if err := e.dialer.DialAndSend(m); err != nil {
			return fmt.Errorf("发送邮件失败: %w", err)
		}
		return nil
	})
}

// Verify 建立一次 SMTP 连接并认证后关闭
func (e *EmailChannel) Verify(ctx context.Context) error {
	if e.dialer == nil {
		return nil
	}
	return withContext(ctx, func() error {
		s, err := e.dialer.Dial()
		if err != nil {
			return fmt.Errorf("连接 SMTP 失败: %w", err)
		}
		return s.Close()
	})
}

// withContext gomail 不接受 context，超时后放弃等待，连接由 gomail 自行结束
func withContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
