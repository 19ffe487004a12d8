package web

import (
	"errors"
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/smysle/allowance-campaign/internal/service"
	pkglogger "github.com/smysle/allowance-campaign/pkg/logger"
)

// decodeBody 请求体解析为 JSON 对象，空体或非 JSON 类型视为空对象
func decodeBody(c *fiber.Ctx) (map[string]any, error) {
	body := map[string]any{}
	if len(c.Body()) == 0 || !c.Is("json") {
		return body, nil
	}
	if err := c.BodyParser(&body); err != nil {
		return nil, err
	}
	return body, nil
}

// stringField 字段为字符串时返回其值，否则为空
func stringField(body map[string]any, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

// numberField 字段为有限数字时返回
func numberField(body map[string]any, key string) *float64 {
	v, ok := body[key].(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// truthy 按 JS 的真值规则判断 clear
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

// register POST /api/register
func (s *Server) register(c *fiber.Ctx) error {
	body, err := decodeBody(c)
	if err != nil {
		body = map[string]any{}
	}

	res, err := s.svc.Register.Register(service.RegisterInput{
		Address:  stringField(body, "address"),
		TxHash:   stringField(body, "txHash"),
		Referrer: stringField(body, "referrer"),
	})
	if err != nil {
		if errors.Is(err, service.ErrBadAddress) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad address"})
		}
		return err
	}

	return c.JSON(fiber.Map{"ok": true, "code": res.Code})
}

// getCountdown GET /api/countdown
func (s *Server) getCountdown(c *fiber.Ctx) error {
	return c.JSON(s.svc.Countdown.Snapshot())
}

// setCountdown POST /api/countdown
func (s *Server) setCountdown(c *fiber.Ctx) error {
	body, err := decodeBody(c)
	if err != nil {
		pkglogger.Debug().Err(err).Msg("倒计时请求体无法解析")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid target"})
	}

	in := service.OverrideInput{
		DaysFromNow: numberField(body, "daysFromNow"),
		Clear:       truthy(body["clear"]),
	}
	if t, ok := body["target"].(string); ok {
		in.Target = &t
	}

	target, err := s.svc.Countdown.Apply(in)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTarget) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid target"})
		}
		return err
	}

	return c.JSON(fiber.Map{"ok": true, "target": target})
}

// listApprovals GET /api/users
func (s *Server) listApprovals(c *fiber.Ctx) error {
	list, err := s.svc.Approvals.List()
	if err != nil {
		// 回写失败不影响本次返回
		pkglogger.Error().Err(err).Msg("授权列表对账回写失败")
	}
	return c.JSON(list)
}

// leaderboard GET /api/leaderboard?limit=
func (s *Server) leaderboard(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", service.DefaultLeaderboardLimit)
	return c.JSON(s.svc.Leaderboard.Top(limit))
}

// leaderboardImage GET /api/leaderboard.png?limit=
func (s *Server) leaderboardImage(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", service.DefaultLeaderboardLimit)
	data, err := s.svc.Leaderboard.RenderPNG(limit)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	return c.Send(data)
}

// stats GET /api/stats
func (s *Server) stats(c *fiber.Ctx) error {
	return c.JSON(s.svc.Leaderboard.Stats())
}
