// Package dbtest 为各模块的测试提供独立的内存SQLite数据库
package dbtest

import (
	"fmt"
	"testing"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// New 打开一个只属于当前测试的内存数据库，并迁移给定的模型
func New(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenDB(config.DriverSqlite, dsn)
	if err != nil {
		t.Fatalf("无法打开测试数据库: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("无法迁移测试表: %v", err)
		}
	}
	return db
}
