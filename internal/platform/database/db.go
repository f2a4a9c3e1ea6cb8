package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager 拥有数据库与Redis连接的生命周期。
// 整个进程只创建一次，所有模块复用同一组连接。
type Manager struct {
	DB  *gorm.DB
	RDB *redis.Client
}

// OpenDB 根据驱动名打开一个GORM连接
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverSqlite:
		dialector = sqlite.Open(dsn)
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", driver)
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Silent,
			Colorful:      true,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if driver == config.DriverSqlite {
		// SQLite 只允许单写者，串行化连接避免 database is locked
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("无法启用SQLite外键约束: %w", err)
		}
	}

	return db, nil
}

// OpenRedis 创建Redis客户端并用Ping校验连通性
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}
	return rdb, nil
}

// Connect 建立进程内唯一的一组连接。
// 配置不需要Redis时，RDB 为 nil。
func Connect(ctx context.Context, cfg *config.Config) (*Manager, error) {
	db, err := OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	slog.Info("数据库连接成功", "driver", cfg.Database.Driver)

	m := &Manager{DB: db}
	if cfg.NeedsRedis() {
		rdb, err := OpenRedis(ctx, cfg.Database.Redis)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		m.RDB = rdb
		slog.Info("Redis 连接成功", "address", cfg.Database.Redis.Address)
	}

	return m, nil
}

// Close 释放所有连接，可以重复调用
func (m *Manager) Close() error {
	var errs []error
	if m.RDB != nil {
		if err := m.RDB.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, fmt.Errorf("关闭Redis失败: %w", err))
		}
	}
	if m.DB != nil {
		if sqlDB, err := m.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("关闭数据库失败: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
