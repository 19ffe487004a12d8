// Package notifier 新授权管理员通知
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/smysle/allowance-campaign/internal/database/models"
	"github.com/smysle/allowance-campaign/internal/metrics"
	"github.com/smysle/allowance-campaign/internal/worker"
	"github.com/smysle/allowance-campaign/pkg/logger"
	"github.com/smysle/allowance-campaign/pkg/utils"
)

const sendTimeout = 30 * time.Second

// Message 一条通知的内容
type Message struct {
	Subject string
	Text    string
	HTML    string

	// 以下为原始字段，供不支持表格的渠道自行排版
	Address   string
	RefCode   string
	RefLabel  string
	TxHash    string
	Timestamp string
}

// Channel 通知渠道
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg Message) error
}

// Verifier 支持启动时连通性检查的渠道
type Verifier interface {
	Verify(ctx context.Context) error
}

// Submitter 异步任务提交方
type Submitter interface {
	Submit(task worker.Task) error
}

var htmlTemplate = template.Must(template.New("approval").Parse(`
<div style="font-family:Arial,sans-serif;font-size:14px;line-height:1.6;color:#0f172a;">
  <h2 style="margin-top:0;">New USDT Subscription</h2>
  <p>The following wallet just approved the puller allowance:</p>
  <table style="border-collapse:collapse;">
    <tr><td style="padding:4px 12px;color:#64748b;">Wallet Address</td><td style="padding:4px 12px;font-weight:600;">{{.Address}}</td></tr>
    <tr><td style="padding:4px 12px;color:#64748b;">Referral Code</td><td style="padding:4px 12px;font-weight:600;">{{.RefCode}}</td></tr>
    <tr><td style="padding:4px 12px;color:#64748b;">Referred By</td><td style="padding:4px 12px;font-weight:600;">{{.RefLabel}}</td></tr>
    <tr><td style="padding:4px 12px;color:#64748b;">Transaction Hash</td><td style="padding:4px 12px;">{{.TxHash}}</td></tr>
    <tr><td style="padding:4px 12px;color:#64748b;">Recorded At</td><td style="padding:4px 12px;">{{.Timestamp}}</td></tr>
  </table>
  <p style="margin-top:16px;">You can review the full list from the admin dashboard.</p>
</div>`))

// Compose 生成一条授权事件的通知内容
func Compose(a models.Approval) Message {
	return compose(a, time.Now)
}

func compose(a models.Approval, now func() time.Time) Message {
	ts := a.UpdatedAt
	if ts == 0 {
		ts = utils.Millis(now())
	}

	msg := Message{
		Subject:   "New USDT subscription: " + a.Address,
		Address:   a.Address,
		RefCode:   orDash(models.StrVal(a.RefCode)),
		RefLabel:  referrerLabel(a),
		TxHash:    orDash(models.StrVal(a.TxHash)),
		Timestamp: utils.FormatMillisISO(ts),
	}

	msg.Text = strings.Join([]string{
		"Wallet Address: " + msg.Address,
		"Referral Code: " + msg.RefCode,
		"Referred By: " + msg.RefLabel,
		"Transaction: " + msg.TxHash,
		"Recorded At: " + msg.Timestamp,
	}, "\n")

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, msg); err != nil {
		logger.Warn().Err(err).Msg("渲染通知 HTML 失败")
	}
	msg.HTML = buf.String()

	return msg
}

// referrerLabel "<referrer> (code <code>)"，没有推荐人时为 Direct
func referrerLabel(a models.Approval) string {
	if !a.HasReferrer() {
		return "Direct"
	}
	if code := models.StrVal(a.ReferrerCode); code != "" {
		return fmt.Sprintf("%s (code %s)", *a.Referrer, code)
	}
	return *a.Referrer
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Dispatcher 把授权事件分发到所有启用的渠道
type Dispatcher struct {
	channels []Channel
	pool     Submitter
	now      func() time.Time

	// 每个渠道的"未启用"日志只打一次
	disabledOnce []sync.Once
}

// NewDispatcher 创建分发器，pool 为 nil 时同步发送
func NewDispatcher(pool Submitter, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels:     channels,
		pool:         pool,
		now:          time.Now,
		disabledOnce: make([]sync.Once, len(channels)),
	}
}

// NotifyAsync 提交到协程池后立即返回，队列满时丢弃并记录
func (d *Dispatcher) NotifyAsync(a models.Approval) {
	if d.pool == nil {
		d.Dispatch(context.Background(), a)
		return
	}

	err := d.pool.Submit(func(ctx context.Context) error {
		d.Dispatch(ctx, a)
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("address", a.Address).Msg("通知队列已满，丢弃本次通知")
		metrics.IncNotification("all", "dropped")
	}
}

// Dispatch 同步发送到所有渠道，失败只记录不返回
func (d *Dispatcher) Dispatch(ctx context.Context, a models.Approval) {
	msg := compose(a, d.now)

	for i, ch := range d.channels {
		if !ch.Enabled() {
			d.disabledOnce[i].Do(func() {
				logger.Warn().Str("channel", ch.Name()).Msg("通知渠道未配置，已禁用")
			})
			metrics.IncNotification(ch.Name(), "skipped")
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := ch.Send(sendCtx, msg)
		cancel()

		if err != nil {
			logger.Warn().Err(err).Str("channel", ch.Name()).Str("address", a.Address).Msg("发送通知失败")
			metrics.IncNotification(ch.Name(), "failed")
			continue
		}
		logger.Debug().Str("channel", ch.Name()).Str("address", a.Address).Msg("通知已发送")
		metrics.IncNotification(ch.Name(), "sent")
	}
}

// VerifyAsync 后台检查各渠道连通性，失败只记录日志
func (d *Dispatcher) VerifyAsync(ctx context.Context) {
	for _, ch := range d.channels {
		v, ok := ch.(Verifier)
		if !ok || !ch.Enabled() {
			continue
		}
		go func(name string, v Verifier) {
			if err := v.Verify(ctx); err != nil {
				logger.Warn().Err(err).Str("channel", name).Msg("通知渠道连通性检查失败")
				return
			}
			logger.Info().Str("channel", name).Msg("通知渠道连通性检查通过")
		}(ch.Name(), v)
	}
}

// Enabled 是否至少有一个渠道可用
func (d *Dispatcher) Enabled() bool {
	for _, ch := range d.channels {
		if ch.Enabled() {
			return true
		}
	}
	return false
}
