package shutdown

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/pkg/lifecycle"
)

const (
	httpTimeout     = 15 * time.Second
	gracefulTimeout = 30 * time.Second
	forcefulTimeout = 1 * time.Second
)

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager
	// Resources 在所有后台服务退出之后按顺序关闭
	Resources []io.Closer
}

// NewCoordinator 创建一个新的停机协调器
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, resources ...io.Closer) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		Resources:       resources,
	}
}

// ListenForSignalsAndShutdown 启动信号监听并阻塞，直到停机流程完成
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	slog.Info("收到关闭信号，开始优雅停机...", "signal", sig.String())
	c.Shutdown(server)
}

// Shutdown 执行停机流程。
// 先广播第一阶段信号让事件流等长连接结束，再关闭HTTP服务器。
func (c *Coordinator) Shutdown(server *http.Server) {
	slog.Info("第一阶段停机：等待后台任务完成", "timeout", gracefulTimeout)
	c.GracefulManager.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpTimeout)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP服务器关闭错误", "error", err)
		} else {
			slog.Info("HTTP服务器已关闭")
		}
	}

	remaining := c.GracefulManager.WaitWithTimeout(gracefulTimeout)
	if len(remaining) == 0 {
		slog.Info("所有服务已在第一阶段优雅关闭")
	} else {
		// 强制信号意味着立即停止，不再等待任何收尾工作
		slog.Warn("第一阶段超时，发送第二停机信号", "remaining", remaining, "timeout", forcefulTimeout)
		c.ForcefulManager.Shutdown()
		if left := c.ForcefulManager.WaitWithTimeout(forcefulTimeout); len(left) > 0 {
			slog.Error("部分服务未能退出", "services", left)
		}
	}

	for _, r := range c.Resources {
		if err := r.Close(); err != nil {
			slog.Error("释放资源失败", "error", err)
		}
	}

	slog.Info("优雅停机完成")
}
