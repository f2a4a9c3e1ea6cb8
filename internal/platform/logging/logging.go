// Package logging 根据配置创建进程的默认 slog 日志器
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
)

// New 按配置创建日志器，格式为空时使用text
func New(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("无法识别的日志级别 %q: %w", cfg.Level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("不支持的日志格式: %q", cfg.Format)
}

// Setup 创建日志器并设为 slog 的默认日志器
func Setup(cfg config.LogConfig, w io.Writer) error {
	logger, err := New(cfg, w)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
