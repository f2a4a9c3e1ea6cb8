// cmd/client 是投票服务的命令行客户端。
//
// 用法:
//
//	commentators list                      --server http://localhost:8080
//	commentators vote <id> <up|down>
//	commentators play                      逐行读取 "up <id>" / "down <id>" / "refresh"
//	commentators watch                     持续显示排名，其他用户投票后自动刷新
//	commentators whoami | name <名字> | signout
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/analytics"
	"github.com/SlpAus/commentator-ranking-backend/internal/client"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/logging"
	"github.com/SlpAus/commentator-ranking-backend/pkg/lifecycle"
	"github.com/spf13/cobra"
)

// flushTimeout 是退出前等待埋点发送完毕的最长时间
const flushTimeout = 5 * time.Second

var (
	serverAddr string
	statePath  string
	cfg        *config.Config
)

func main() {
	root := &cobra.Command{
		Use:           "commentators",
		Short:         "为最差板球解说员投票的命令行客户端",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return err
			}
			if err := logging.Setup(config.LogConfig{Level: "warn", Format: cfg.Log.Format}, os.Stderr); err != nil {
				return err
			}
			if !cmd.Flags().Changed("server") {
				serverAddr = cfg.Client.Server
			}
			if !cmd.Flags().Changed("state") && cfg.Client.StatePath != "" {
				statePath = cfg.Client.StatePath
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s", "http://localhost:8080", "服务端地址")
	root.PersistentFlags().StringVar(&statePath, "state", "", "状态文件路径，默认在用户配置目录下")

	root.AddCommand(listCmd(), voteCmd(), playCmd(), watchCmd(), whoamiCmd(), nameCmd(), signoutCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env 是一次命令调用共享的客户端依赖
type env struct {
	store  *client.FileStore
	api    *client.HTTPClient
	remote client.API
	sink   analytics.Sink
	// services 运行埋点worker等后台任务，Close 时停止并等待它们
	services *lifecycle.Manager
}

func newEnv() (*env, error) {
	path := statePath
	if path == "" {
		var err error
		if path, err = client.DefaultStatePath(); err != nil {
			return nil, err
		}
	}
	store, err := client.OpenFileStore(path)
	if err != nil {
		return nil, err
	}
	api, err := client.NewHTTPClient(serverAddr, store)
	if err != nil {
		return nil, err
	}

	services := lifecycle.NewManager()
	sink := analytics.New(cfg.Analytics)
	if c, ok := sink.(*analytics.Client); ok {
		if err := services.Go("analytics", c.Run); err != nil {
			return nil, err
		}
	}
	return &env{store: store, api: api, remote: api, sink: sink, services: services}, nil
}

// Close 停止后台任务，尽力发送尚未上报的埋点
func (e *env) Close() {
	e.services.Shutdown()
	if leftovers := e.services.WaitWithTimeout(flushTimeout); len(leftovers) > 0 {
		slog.Warn("后台任务未能按时退出", "services", leftovers)
	}
}

// newSession 创建并启动一个会话，onChange 可以为 nil
func (e *env) newSession(ctx context.Context, onChange func()) (*client.Session, error) {
	s := client.NewSession(e.remote, client.Options{
		CacheTime:      cfg.Client.CacheTime,
		ShareThreshold: cfg.Client.ShareThreshold,
		Flags:          e.store,
		Sink:           e.sink,
		OnSharePrompt:  func() { printSharePrompt(os.Stdout, cfg.Client.BaseURL) },
		OnChange:       onChange,
	})
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}
