// Package web Web API 服务
package web

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smysle/allowance-campaign/internal/config"
	"github.com/smysle/allowance-campaign/internal/service"
	pkglogger "github.com/smysle/allowance-campaign/pkg/logger"
)

const version = "1.0.0"

// Services Web 层依赖的业务服务
type Services struct {
	Register    *service.RegisterService
	Countdown   *service.CountdownService
	Approvals   *service.ApprovalService
	Leaderboard *service.LeaderboardService
}

// Server Web 服务器
type Server struct {
	app       *fiber.App
	cfg       *config.ServerConfig
	svc       Services
	startTime time.Time
}

// New 创建 Web 服务器
func New(cfg *config.ServerConfig, svc Services) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				pkglogger.Error().Err(err).Str("path", c.Path()).Msg("请求处理失败")
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 中间件
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	server := &Server{
		app:       app,
		cfg:       cfg,
		svc:       svc,
		startTime: time.Now(),
	}

	// 注册路由
	server.registerRoutes()

	return server
}

// App 底层 fiber 实例
func (s *Server) App() *fiber.App {
	return s.app
}

// registerRoutes 注册路由，静态文件放在最后兜底
func (s *Server) registerRoutes() {
	// 健康检查
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/status", s.detailedStatus)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	api.Post("/register", s.register)
	api.Get("/countdown", s.getCountdown)
	api.Post("/countdown", s.setCountdown)
	api.Get("/users", s.listApprovals)
	api.Get("/leaderboard", s.leaderboard)
	api.Get("/leaderboard.png", s.leaderboardImage)
	api.Get("/stats", s.stats)

	// 旧页面地址
	redirectHome := func(c *fiber.Ctx) error {
		return c.Redirect("/", fiber.StatusMovedPermanently)
	}
	s.app.Get("/user", redirectHome)
	s.app.Get("/user.html", redirectHome)

	adminPage := filepath.Join(s.cfg.PublicDir, "admin.html")
	sendAdmin := func(c *fiber.Ctx) error {
		return c.SendFile(adminPage)
	}
	s.app.Get("/admin", sendAdmin)
	s.app.Get("/admin/", sendAdmin)

	s.app.Static("/", s.cfg.PublicDir)
}

// Start 启动服务器，阻塞直到 Stop
func (s *Server) Start() error {
	addr := s.cfg.Addr()
	pkglogger.Info().Str("addr", addr).Msg("【API服务】启动中...")
	return s.app.Listen(addr)
}

// Stop 停止服务器
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// StatusResponse 详细状态响应
type StatusResponse struct {
	Status    string     `json:"status"`
	Version   string     `json:"version"`
	Uptime    string     `json:"uptime"`
	System    SystemInfo `json:"system"`
	Countdown string     `json:"countdown_source"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     string `json:"mem_alloc"`
}

// detailedStatus 详细状态
func (s *Server) detailedStatus(c *fiber.Ctx) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	source := ""
	if s.svc.Countdown != nil {
		source = s.svc.Countdown.Source()
	}

	return c.JSON(StatusResponse{
		Status:  "ok",
		Version: version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAlloc:     fmt.Sprintf("%.2f MB", float64(memStats.Alloc)/1024/1024),
		},
		Countdown: source,
	})
}
