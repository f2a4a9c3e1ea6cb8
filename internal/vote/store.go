package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/database"
	"gorm.io/gorm"
)

// Store 是投票表的读写入口，唯一性由 idx_votes_user_commentator 保证
type Store struct {
	db *gorm.DB
}

// NewStore 基于一个已建立的数据库连接创建 Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate 创建或更新投票表结构
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Vote{}); err != nil {
		return fmt.Errorf("无法迁移vote表: %w", err)
	}
	return nil
}

// Insert 插入一条新投票。
// 如果该用户已经对该解说员投过票，返回 ErrDuplicateVote。
func (s *Store) Insert(ctx context.Context, v *Vote) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return ErrDuplicateVote
		}
		return fmt.Errorf("写入投票失败: %w", err)
	}
	return nil
}

// UpdateType 修改已有投票的取值
func (s *Store) UpdateType(ctx context.Context, userID, commentatorID string, voteType Type) error {
	res := s.db.WithContext(ctx).Model(&Vote{}).
		Where("user_id = ? AND commentator_id = ?", userID, commentatorID).
		Updates(map[string]any{"vote_type": voteType, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("更新投票失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVoteNotFound
	}
	return nil
}

// upsertAttempts 是遇到锁冲突等临时错误时的最大尝试次数
const upsertAttempts = 3

// Upsert 先尝试插入，唯一约束冲突时改为更新。
// created 报告这是否是该用户对该解说员的第一票。
func (s *Store) Upsert(ctx context.Context, userID, commentatorID string, voteType Type) (created bool, err error) {
	for attempt := 1; ; attempt++ {
		created, err = s.upsertOnce(ctx, userID, commentatorID, voteType)
		if err == nil || attempt == upsertAttempts || !database.IsRetryableError(err) {
			return created, err
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
}

func (s *Store) upsertOnce(ctx context.Context, userID, commentatorID string, voteType Type) (created bool, err error) {
	v := &Vote{UserID: userID, CommentatorID: commentatorID, VoteType: voteType}
	err = s.Insert(ctx, v)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrDuplicateVote) {
		return false, err
	}
	return false, s.UpdateType(ctx, userID, commentatorID, voteType)
}
