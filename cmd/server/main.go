package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/api"
	"github.com/SlpAus/commentator-ranking-backend/internal/analytics"
	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/database"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/health"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/logging"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/shutdown"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/startup"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"github.com/SlpAus/commentator-ranking-backend/pkg/lifecycle"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("读取 .env 文件失败", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal("加载配置失败", err)
	}
	if err := logging.Setup(cfg.Log, os.Stdout); err != nil {
		fatal("初始化日志失败", err)
	}
	gin.SetMode(cfg.Server.Mode)

	ctx := context.Background()

	// 1. 建立数据库和Redis连接
	conns, err := database.Connect(ctx, cfg)
	if err != nil {
		fatal("连接存储失败", err)
	}

	// 2. 迁移表结构，创建各模块的存储层
	modules, err := startup.InitializeApplication(ctx, conns.DB, user.DefaultCacheSize)
	if err != nil {
		fatal("应用初始化失败，无法启动", err)
	}

	gracefulMgr := lifecycle.NewManager()
	forcefulMgr := lifecycle.NewManager()

	// 3. 选择变更通知的实现
	var notifier vote.Notifier
	var verifier startup.SubscriptionVerifier
	switch cfg.Notifier.Driver {
	case config.NotifierRedis:
		redisNotifier := vote.NewRedisNotifier(conns.RDB)
		notifier, verifier = redisNotifier, redisNotifier
	default:
		notifier = vote.NewLocalNotifier()
	}

	var limiter *vote.RateLimiter
	if rl := cfg.Votes.RateLimit; rl.PerWindow > 0 {
		limiter = vote.NewRateLimiter(conns.RDB, rl.PerWindow, rl.Window)
		slog.Info("已启用投票频率限制", "per_window", rl.PerWindow, "window", rl.Window)
	}

	// 4. 埋点上报在后台批量发送。第一阶段停机时发送剩余事件，第二阶段直接放弃。
	sink := analytics.New(cfg.Analytics)
	if client, ok := sink.(*analytics.Client); ok {
		abort, err := forcefulMgr.NewServiceHandle("analytics-flush")
		if err != nil {
			fatal("注册埋点上报失败", err)
		}
		client.AbortOn(abort.Ctx())
		if err := gracefulMgr.Go("analytics", func(h *lifecycle.Handle) {
			defer abort.Close()
			client.Run(h)
		}); err != nil {
			fatal("启动埋点上报失败", err)
		}
	}

	// 5. Redis健康检查
	checker := health.NewChecker(conns.DB, conns.RDB, startup.RedisRecovery(verifier))
	if err := checker.InitializeRunID(ctx); err != nil {
		fatal("Redis健康检查初始化失败", err)
	}
	if err := gracefulMgr.Go("redis-health", checker.Run); err != nil {
		fatal("启动Redis健康检查失败", err)
	}

	// 事件流连接在第一阶段停机时结束
	streamHandle, err := gracefulMgr.NewServiceHandle("vote-stream")
	if err != nil {
		fatal("注册事件流失败", err)
	}
	go func() {
		defer streamHandle.Close()
		<-streamHandle.Done()
	}()

	voteSvc := vote.NewService(modules.Votes, modules.Commentators, notifier, limiter)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, cfg.Server, api.Handlers{
		Users:        modules.Users,
		User:         user.NewHandler(modules.Users, sink),
		Commentators: commentator.NewHandler(modules.Commentators),
		Votes:        vote.NewHandler(voteSvc, notifier, streamHandle.Done()),
		Health:       checker,
	})

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: r,
	}

	go func() {
		slog.Info("服务器已准备就绪，开始监听", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("服务器启动失败", err)
		}
	}()

	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, conns)
	coordinator.ListenForSignalsAndShutdown(server)
}
