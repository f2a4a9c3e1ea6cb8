package user

import "time"

// User 定义了用户在数据库中的持久化模型。
// 匿名登录创建的用户 IsAnonymous 为 true，认领显示名之后成为具名用户。
type User struct {
	ID          string    `gorm:"primarykey;type:varchar(36)" json:"id"`
	DisplayName *string   `gorm:"type:varchar(32);uniqueIndex" json:"display_name"`
	IsAnonymous bool      `gorm:"not null" json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
