package config

import (
	"log"
	"os"

	"NeighborSafe/pkg/logger"
	"NeighborSafe/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver      string `env:"DB_DRIVER"`
	DSN           string `env:"DSN"`
	Log           logger.LogConfig
	Addr          string `env:"ADDR"`
	Mode          string `env:"MODE"`
	APIPrefix     string `env:"API_PREFIX"`
	AuthPrefix    string `env:"AUTH_PREFIX"`
	SessionSecret string `env:"SESSION_SECRET"`

	// 紧急派发边缘函数（短信/推送/邮件的带外通道）
	DispatchURL     string `env:"DISPATCH_URL"`
	DispatchTimeout int64  `env:"DISPATCH_TIMEOUT_SECONDS"`

	// 逆地理编码服务
	GeocodeURL     string `env:"GEOCODE_URL"`
	GeocodeTimeout int64  `env:"GEOCODE_TIMEOUT_SECONDS"`

	// 报警关联窗口与回扫深度
	CorrelationWindowMinutes int64 `env:"CORRELATION_WINDOW_MINUTES"`
	CorrelationLookback      int64 `env:"CORRELATION_LOOKBACK"`

	// realtime 轮询兜底间隔（秒）
	SyncPollSeconds int64 `env:"SYNC_POLL_SECONDS"`

	CacheType     string `env:"CACHE_TYPE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	MetricsEnabled bool   `env:"METRICS_ENABLED"`
	StaleSweepCron string `env:"STALE_SWEEP_CRON"`

	// 数据库备份。BackupDir 为空时关闭
	BackupDir      string `env:"BACKUP_DIR"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver:      util.GetEnv("DB_DRIVER"),
		DSN:           util.GetEnv("DSN"),
		Addr:          util.GetEnvDefault("ADDR", ":8080"),
		Mode:          util.GetEnv("MODE"),
		APIPrefix:     util.GetEnvDefault("API_PREFIX", "/api"),
		AuthPrefix:    util.GetEnvDefault("AUTH_PREFIX", "auth"),
		SessionSecret: util.GetEnv("SESSION_SECRET"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		DispatchURL:              util.GetEnv("DISPATCH_URL"),
		DispatchTimeout:          util.GetIntEnv("DISPATCH_TIMEOUT_SECONDS"),
		GeocodeURL:               util.GetEnv("GEOCODE_URL"),
		GeocodeTimeout:           util.GetIntEnv("GEOCODE_TIMEOUT_SECONDS"),
		CorrelationWindowMinutes: util.GetIntEnv("CORRELATION_WINDOW_MINUTES"),
		CorrelationLookback:      util.GetIntEnv("CORRELATION_LOOKBACK"),
		SyncPollSeconds:          util.GetIntEnv("SYNC_POLL_SECONDS"),
		CacheType:                util.GetEnvDefault("CACHE_TYPE", "local"),
		RedisAddr:                util.GetEnv("REDIS_ADDR"),
		RedisPassword:            util.GetEnv("REDIS_PASSWORD"),
		MetricsEnabled:           util.GetBoolEnv("METRICS_ENABLED"),
		StaleSweepCron:           util.GetEnv("STALE_SWEEP_CRON"),
		BackupDir:                util.GetEnv("BACKUP_DIR"),
		BackupSchedule:           util.GetEnvDefault("BACKUP_SCHEDULE", "@daily"),
	}
	return nil
}
