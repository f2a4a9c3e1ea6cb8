package commentator

import (
	"context"
	"errors"
	"fmt"

	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 是解说员表的读写入口
type Repository struct {
	db *gorm.DB
}

// NewRepository 基于一个已建立的数据库连接创建 Repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate 创建解说员表以及指向它的投票表外键
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&Commentator{}, &vote.Vote{}); err != nil {
		return fmt.Errorf("无法迁移commentator表: %w", err)
	}
	return nil
}

// ListStandings 读取所有解说员及其投票，按创建时间倒序返回投影。
// userID 非空时填充该用户自己的投票。
func (r *Repository) ListStandings(ctx context.Context, userID string) ([]Standing, error) {
	var commentators []Commentator
	err := r.db.WithContext(ctx).
		Preload("Votes").
		Order("created_at DESC").
		Order("id ASC").
		Find(&commentators).Error
	if err != nil {
		return nil, fmt.Errorf("读取解说员列表失败: %w", err)
	}

	standings := make([]Standing, len(commentators))
	for i, c := range commentators {
		standings[i] = NewStanding(c, userID)
	}
	return standings, nil
}

// Get 读取单个解说员的投影
func (r *Repository) Get(ctx context.Context, id, userID string) (*Standing, error) {
	var c Commentator
	err := r.db.WithContext(ctx).Preload("Votes").Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, vote.ErrCommentatorNotFound
	}
	if err != nil {
		return nil, err
	}
	s := NewStanding(c, userID)
	return &s, nil
}

// IsActive 报告解说员当前是否可投票
func (r *Repository) IsActive(ctx context.Context, id string) (bool, error) {
	var c Commentator
	err := r.db.WithContext(ctx).Select("id", "is_active").Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, vote.ErrCommentatorNotFound
	}
	if err != nil {
		return false, err
	}
	return c.IsActive, nil
}

// SetActive 修改解说员的可投票状态
func (r *Repository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&Commentator{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return vote.ErrCommentatorNotFound
	}
	return nil
}

// Upsert 按ID批量写入解说员，已存在的记录更新展示信息与状态，投票不受影响
func (r *Repository) Upsert(ctx context.Context, commentators []Commentator) error {
	if len(commentators) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Votes").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "image_url", "is_active"}),
	}).Create(&commentators).Error
}
