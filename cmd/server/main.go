// Allowance Campaign
// 授权登记、推荐码与倒计时后端
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/smysle/allowance-campaign/internal/bot"
	"github.com/smysle/allowance-campaign/internal/bot/handlers"
	"github.com/smysle/allowance-campaign/internal/config"
	"github.com/smysle/allowance-campaign/internal/database"
	"github.com/smysle/allowance-campaign/internal/database/repository"
	"github.com/smysle/allowance-campaign/internal/metrics"
	"github.com/smysle/allowance-campaign/internal/notifier"
	"github.com/smysle/allowance-campaign/internal/scheduler"
	"github.com/smysle/allowance-campaign/internal/service"
	"github.com/smysle/allowance-campaign/internal/web"
	"github.com/smysle/allowance-campaign/internal/worker"
	"github.com/smysle/allowance-campaign/pkg/logger"
)

var (
	configPath  = flag.String("config", "config.json", "配置文件路径")
	debug       = flag.Bool("debug", false, "调试模式")
	restorePath = flag.String("restore", "", "从快照文件恢复数据后退出")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	// 初始化日志
	logger.Init(*debug || cfg.Debug, cfg.LogDir)
	logger.Info().Msg("Allowance Campaign 启动中...")
	logger.Info().Msg("✅ 配置加载完成")

	metrics.MustRegister()

	// 初始化数据目录
	store, err := database.Open(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化数据目录失败")
	}

	backupSvc := service.NewBackupService(store, cfg.Backup.Dir)
	if *restorePath != "" {
		if _, err := backupSvc.Restore(*restorePath); err != nil {
			logger.Fatal().Err(err).Str("file", *restorePath).Msg("恢复快照失败")
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 通知协程池
	pool := worker.NewPool(cfg.Worker.Workers)
	pool.Start(ctx)

	dispatcher := notifier.NewDispatcher(pool,
		notifier.NewEmailChannel(cfg.SMTP),
		notifier.NewTelegramChannel(cfg.Telegram),
	)
	if dispatcher.Enabled() {
		dispatcher.VerifyAsync(ctx)
	} else {
		logger.Warn().Msg("未配置任何通知渠道，新授权不会通知管理员")
	}

	// 定时任务
	sched := scheduler.New(&cfg.Backup, backupSvc)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("注册定时任务失败")
	}
	logger.Info().Int("jobs", sched.Jobs()).Msg("✅ 定时任务调度器启动")

	countdownSvc := service.NewCountdownService(&cfg.Countdown, repository.NewCountdownRepository(store))
	leaderboardSvc := service.NewLeaderboardService(store)

	// Web 服务
	webServer := web.New(&cfg.Server, web.Services{
		Register:    service.NewRegisterService(store, dispatcher),
		Countdown:   countdownSvc,
		Approvals:   service.NewApprovalService(store),
		Leaderboard: leaderboardSvc,
	})
	go func() {
		if err := webServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Web 服务启动失败")
		}
	}()

	logger.Info().Str("url", "http://localhost:"+strconv.Itoa(cfg.Server.Port)).Msg("🚀 服务已启动")
	for _, ip := range lanIPv4() {
		logger.Info().Str("url", "http://"+ip+":"+strconv.Itoa(cfg.Server.Port)).Msg("局域网访问地址")
	}

	// Telegram 管理员命令
	var tgBot *bot.Bot
	if cfg.Telegram.Enabled() && cfg.Telegram.Commands {
		var backup handlers.Backupper
		if cfg.Backup.Enabled {
			backup = backupSvc
		}
		tgBot, err = bot.New(&cfg.Telegram, handlers.New(countdownSvc, leaderboardSvc, backup))
		if err != nil {
			logger.Error().Err(err).Msg("初始化 Telegram Bot 失败，跳过管理员命令")
		} else {
			go tgBot.Run()
		}
	}

	// 监听系统信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务...")
	if tgBot != nil {
		tgBot.Stop()
	}
	if err := webServer.Stop(); err != nil {
		logger.Warn().Err(err).Msg("关闭 Web 服务失败")
	}
	sched.Stop()
	pool.Stop()
	logger.Info().Msg("👋 再见!")
}

// lanIPv4 非回环的 IPv4 地址
func lanIPv4() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	var ips []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			ips = append(ips, ip4.String())
		}
	}
	return ips
}
