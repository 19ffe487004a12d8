// Package middleware Bot 中间件
package middleware

import (
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/smysle/allowance-campaign/pkg/logger"
)

// commandOf 取出命令名，去掉 @botname 和参数
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

// withCaller 附加会话、用户和命令字段
func withCaller(e *zerolog.Event, c tele.Context) *zerolog.Event {
	if chat := c.Chat(); chat != nil {
		e = e.Int64("chat_id", chat.ID)
	}
	if user := c.Sender(); user != nil {
		e = e.Int64("user_id", user.ID).Str("username", user.Username)
	}
	return e.Str("command", commandOf(c.Text()))
}

// Logger 记录每条管理命令的耗时与结果
func Logger() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)

			e := logger.Debug()
			if err != nil {
				e = logger.Warn().Err(err)
			}
			withCaller(e, c).Dur("took", time.Since(start)).Msg("管理命令")
			return err
		}
	}
}

// Recover 恢复中间件
func Recover() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					withCaller(logger.Error(), c).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("命令处理 panic")

					err = c.Send("❌ 处理请求时发生错误，请稍后重试")
				}
			}()
			return next(c)
		}
	}
}

// AdminOnly 只响应管理员会话（私聊或管理群）
func AdminOnly(adminChatID int64) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if chat := c.Chat(); chat != nil && chat.ID == adminChatID {
				return next(c)
			}
			if user := c.Sender(); user != nil && user.ID == adminChatID {
				return next(c)
			}

			withCaller(logger.Warn(), c).Int64("admin_chat_id", adminChatID).Msg("非管理员调用命令")
			return c.Send("❌ 您没有权限执行此操作")
		}
	}
}

// floodKey 同一会话里的同一用户
type floodKey struct {
	chat int64
	user int64
}

// AntiFlood 防刷屏中间件，同一会话同一用户两次调用间隔不足时忽略
func AntiFlood(maxPerSecond int) tele.MiddlewareFunc {
	return antiFlood(maxPerSecond, time.Now)
}

func antiFlood(maxPerSecond int, now func() time.Time) tele.MiddlewareFunc {
	var (
		mu       sync.Mutex
		lastCall = make(map[floodKey]time.Time)
	)

	interval := time.Second / time.Duration(maxPerSecond)

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			key := floodKey{user: user.ID}
			if chat := c.Chat(); chat != nil {
				key.chat = chat.ID
			}

			t := now()

			mu.Lock()
			last, exists := lastCall[key]
			if exists && t.Sub(last) < interval {
				mu.Unlock()
				withCaller(logger.Debug(), c).Msg("命令过于频繁，已忽略")
				return nil
			}
			lastCall[key] = t
			mu.Unlock()

			return next(c)
		}
	}
}
