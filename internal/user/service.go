package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/database"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidDisplayName = errors.New("显示名只能包含字母、数字、下划线和连字符，长度3到32")
	ErrDisplayNameTaken   = errors.New("显示名已被占用")
)

var displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// DefaultCacheSize 是用户查询缓存的默认容量
const DefaultCacheSize = 1024

// Service 管理用户的创建、查询和显示名认领。
// 每个请求都要解析会话中的用户，因此查询结果放在LRU缓存中。
type Service struct {
	db    *gorm.DB
	cache *lru.Cache[string, User]
}

// NewService 创建用户服务
func NewService(db *gorm.DB, cacheSize int) (*Service, error) {
	cache, err := lru.New[string, User](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("无法创建用户缓存: %w", err)
	}
	return &Service{db: db, cache: cache}, nil
}

// Migrate 创建或更新用户表结构
func (s *Service) Migrate() error {
	if err := s.db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("无法迁移user表: %w", err)
	}
	return nil
}

// CreateAnonymous 使用 UUID v7 创建一个新的匿名用户
func (s *Service) CreateAnonymous(ctx context.Context) (*User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成UUID v7: %w", err)
	}

	u := User{ID: id.String(), IsAnonymous: true}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("无法创建匿名用户: %w", err)
	}
	s.cache.Add(u.ID, u)
	return &u, nil
}

// Get 按ID查询用户，优先读取缓存
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if u, ok := s.cache.Get(id); ok {
		return &u, nil
	}

	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	s.cache.Add(u.ID, u)
	return &u, nil
}

// ClaimDisplayName 为用户认领一个唯一的显示名，之后该会话不再是匿名会话
func (s *Service) ClaimDisplayName(ctx context.Context, id, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if !displayNamePattern.MatchString(name) {
		return nil, ErrInvalidDisplayName
	}

	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).
		Updates(map[string]any{"display_name": name, "is_anonymous": false})
	if res.Error != nil {
		if database.IsDuplicateKeyError(res.Error) {
			return nil, ErrDisplayNameTaken
		}
		return nil, fmt.Errorf("更新显示名失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}

	s.cache.Remove(id)
	return s.Get(ctx, id)
}
