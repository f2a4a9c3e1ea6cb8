package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/metrics"
	"github.com/SlpAus/commentator-ranking-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// RecoverFunc 在检测到Redis重启后执行，返回错误时下一轮检查会再次调用
type RecoverFunc func(ctx context.Context) error

// Checker 定期检查Redis是否可用、是否重启过，并对外提供健康状态接口
type Checker struct {
	db        *gorm.DB
	rdb       *redis.Client
	status    *Status
	onRestart RecoverFunc
	interval  time.Duration
	runID     func(ctx context.Context) (string, error)
}

// NewChecker 创建检查器。rdb 为 nil 时只检查数据库。
func NewChecker(db *gorm.DB, rdb *redis.Client, onRestart RecoverFunc) *Checker {
	c := &Checker{
		db:        db,
		rdb:       rdb,
		status:    NewStatus(),
		onRestart: onRestart,
		interval:  checkInterval,
	}
	c.runID = c.redisRunID
	return c
}

// Status 返回检查器维护的状态
func (c *Checker) Status() *Status {
	return c.status
}

// redisRunID 从Redis服务器信息中提取run_id
func (c *Checker) redisRunID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", errors.New("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// InitializeRunID 在启动时获取初始的run_id
func (c *Checker) InitializeRunID(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	runID, err := c.runID(ctx)
	if err != nil {
		return fmt.Errorf("无法在启动时获取Redis Run ID: %w", err)
	}
	c.status.SetInitialRunID(runID)
	metrics.RedisHealthy.Set(1)
	slog.Info("获取初始Redis Run ID成功", "run_id", runID)
	return nil
}

// PerformCheck 执行一次完整的检查和可能的恢复操作
func (c *Checker) PerformCheck(ctx context.Context) {
	if c.rdb == nil {
		return
	}

	runID, err := c.runID(ctx)
	connected := err == nil
	if c.status.Assess(connected, runID) {
		c.attemptRecovery(ctx)
	}

	if c.status.State() == StateHealthy {
		metrics.RedisHealthy.Set(1)
	} else {
		metrics.RedisHealthy.Set(0)
	}
}

// attemptRecovery 执行恢复操作，并用恢复之后的run_id校验期间没有再次重启
func (c *Checker) attemptRecovery(ctx context.Context) {
	if c.onRestart != nil {
		if err := c.onRestart(ctx); err != nil {
			slog.Warn("健康检查: 恢复操作失败", "error", err)
			c.status.MarkRecoveryComplete(false, "")
			return
		}
	}

	after, err := c.runID(ctx)
	if err != nil {
		c.status.MarkRecoveryComplete(false, "")
		return
	}
	c.status.MarkRecoveryComplete(true, after)
}

// Run 在后台循环执行检查，直到生命周期句柄发出停机信号
func (c *Checker) Run(h *lifecycle.Handle) {
	if c.rdb == nil {
		return
	}
	slog.Info("Redis健康检查器已启动", "interval", c.interval)
	for {
		if err := h.Sleep(c.interval); err != nil {
			slog.Info("Redis健康检查器已停止")
			return
		}
		c.PerformCheck(h.Ctx())
	}
}

// Report 是健康检查接口的响应
type Report struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// Handle 是 GET /healthz 的处理函数。
// 数据库不可用时返回503，Redis的状态只体现在响应体里。
func (c *Checker) Handle(ctx *gin.Context) {
	report := Report{Status: "ok", Database: "ok", Redis: "disabled"}
	code := http.StatusOK

	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), pingTimeout)
	defer cancel()
	if sqlDB, err := c.db.DB(); err != nil || sqlDB.PingContext(pingCtx) != nil {
		report.Status = "unavailable"
		report.Database = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if c.rdb != nil {
		report.Redis = c.status.State().String()
	}

	ctx.JSON(code, report)
}
