package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Votes     VotesConfig     `mapstructure:"votes"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Client    ClientConfig    `mapstructure:"client"`
}

// LogConfig 定义了日志级别和输出格式(text或json)
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode          string     `mapstructure:"mode"`
	Address       string     `mapstructure:"address"`
	SessionSecret string     `mapstructure:"sessionSecret"`
	SecureCookies bool       `mapstructure:"secureCookies"`
	Cors          CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotifierConfig 选择变更通知的实现。
// redis: 多实例部署时通过Redis Pub/Sub广播；local: 单进程内广播。
type NotifierConfig struct {
	Driver string `mapstructure:"driver"`
}

// VotesConfig 定义了投票接口的频率限制
type VotesConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// RateLimitConfig 中 PerWindow 为0表示不限制
type RateLimitConfig struct {
	PerWindow int           `mapstructure:"perWindow"`
	Window    time.Duration `mapstructure:"window"`
}

// AnalyticsConfig 定义了埋点上报的配置，Token为空时上报被完全禁用
type AnalyticsConfig struct {
	Token    string `mapstructure:"token"`
	Endpoint string `mapstructure:"endpoint"`
}

// ClientConfig 是命令行客户端使用的配置
type ClientConfig struct {
	Server         string        `mapstructure:"server"`
	StatePath      string        `mapstructure:"statePath"`
	CacheTime      time.Duration `mapstructure:"cacheTime"`
	ShareThreshold int           `mapstructure:"shareThreshold"`
	BaseURL        string        `mapstructure:"baseURL"`
}

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"

	NotifierRedis = "redis"
	NotifierLocal = "local"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.sessionSecret", "")
	v.SetDefault("server.secureCookies", false)
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("database.driver", DriverSqlite)
	v.SetDefault("database.dsn", "commentators.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("notifier.driver", NotifierRedis)
	v.SetDefault("votes.rateLimit.perWindow", 0)
	v.SetDefault("votes.rateLimit.window", time.Hour)
	v.SetDefault("analytics.token", "")
	v.SetDefault("analytics.endpoint", "https://api.mixpanel.com")
	v.SetDefault("client.server", "http://localhost:8080")
	v.SetDefault("client.cacheTime", 5*time.Minute)
	v.SetDefault("client.shareThreshold", 5)
	v.SetDefault("client.statePath", "")
	v.SetDefault("client.baseURL", "http://localhost:3000")
}

// Validate 检查配置中互相依赖的字段
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("不支持的日志格式: %q", c.Log.Format)
	}
	switch c.Database.Driver {
	case DriverSqlite, DriverPostgres:
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Notifier.Driver {
	case NotifierRedis, NotifierLocal:
	default:
		return fmt.Errorf("不支持的通知驱动: %q", c.Notifier.Driver)
	}
	if c.Votes.RateLimit.PerWindow > 0 && c.Votes.RateLimit.Window <= 0 {
		return errors.New("votes.rateLimit.window 必须为正数")
	}
	return nil
}

// NeedsRedis 报告当前配置是否需要连接Redis
func (c *Config) NeedsRedis() bool {
	return c.Notifier.Driver == NotifierRedis || c.Votes.RateLimit.PerWindow > 0
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件，文件不存在时使用默认值和环境变量
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:9090
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
