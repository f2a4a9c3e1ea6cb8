package startup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"gorm.io/gorm"
)

// Modules 持有启动后各模块共享的存储层实例
type Modules struct {
	Users        *user.Service
	Commentators *commentator.Repository
	Votes        *vote.Store
}

// InitializeApplication 是应用启动时执行的总入口：创建各模块并迁移表结构
func InitializeApplication(ctx context.Context, db *gorm.DB, userCacheSize int) (*Modules, error) {
	slog.Info("开始应用初始化...")

	users, err := user.NewService(db, userCacheSize)
	if err != nil {
		return nil, err
	}
	m := &Modules{
		Users:        users,
		Commentators: commentator.NewRepository(db),
		Votes:        vote.NewStore(db),
	}

	// 投票表引用解说员表，顺序不能颠倒
	if err := m.Users.Migrate(); err != nil {
		return nil, err
	}
	if err := m.Commentators.Migrate(); err != nil {
		return nil, err
	}
	if err := m.Votes.Migrate(); err != nil {
		return nil, err
	}

	standings, err := m.Commentators.ListStandings(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("读取解说员列表失败: %w", err)
	}
	if len(standings) == 0 {
		slog.Warn("解说员表为空，请先运行 seed 命令导入数据")
	}

	slog.Info("应用初始化完成", "commentators", len(standings))
	return m, nil
}

// SubscriptionVerifier 由需要在Redis重启后确认订阅已恢复的通知器实现
type SubscriptionVerifier interface {
	VerifySubscriptions(ctx context.Context) error
}

// RedisRecovery 返回检测到Redis重启后执行的恢复操作。
// 频率限制窗口随Redis一起丢失，只记录日志；订阅由客户端自动重连，这里只做确认。
func RedisRecovery(verifier SubscriptionVerifier) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		slog.Warn("Redis已重启，投票频率限制窗口已被清空")
		if verifier == nil {
			return nil
		}
		if err := verifier.VerifySubscriptions(ctx); err != nil {
			return err
		}
		slog.Info("投票广播订阅已恢复")
		return nil
	}
}
