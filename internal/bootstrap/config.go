package bootstrap

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config 结构体用于存储从环境变量或 .env 文件加载的配置
type Config struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	AppEnv     string `envconfig:"APP_ENV" default:"development"` // development / production
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string `envconfig:"REDIS_ADDR" required:"true"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"` // mysql / sqlite
	DBDSN    string `envconfig:"DB_DSN" default:"live-session.db"`

	JWTSecret         string        `envconfig:"JWT_SECRET" required:"true"`
	RoomTTL           time.Duration `envconfig:"ROOM_TTL" default:"24h"`
	PresenterTokenTTL time.Duration `envconfig:"PRESENTER_TOKEN_TTL" default:"24h"`
	AudienceTokenTTL  time.Duration `envconfig:"AUDIENCE_TOKEN_TTL" default:"24h"`
	CodeGraceTTL      time.Duration `envconfig:"CODE_GRACE_TTL" default:"1h"`

	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1s"`

	AllowAnonymousHandshake bool   `envconfig:"ALLOW_ANONYMOUS_HANDSHAKE" default:"true"`
	CORSAllowedOrigin       string `envconfig:"CORS_ALLOWED_ORIGIN" default:"http://localhost:3000"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"10"`
	SnapshotSchedule  string `envconfig:"SNAPSHOT_SCHEDULE" default:"@every 5m"`
}

// LoadConfig 优先加载 .env 文件（如果存在），再从环境变量填充配置
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	switch cfg.DBDriver {
	case "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", cfg.DBDriver)
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

// NewLogger 按环境选择日志格式
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(level)
	return log
}
