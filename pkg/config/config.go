package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the dubspace-core state layer.
type Config struct {
	AppEnv          string        `mapstructure:"-"`
	HTTPPort        string        `mapstructure:"http_port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Logger       LoggerConfig       `mapstructure:"logger"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Cache        CacheConfig        `mapstructure:"cache"`
	AI           AIConfig           `mapstructure:"ai"`
	Locale       LocaleConfig       `mapstructure:"locale"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level  string        `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"oneof=text json"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables rotating file output in addition to stdout.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		c.SSLMode,
	)
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// SubscriptionConfig carries billing-policy knobs. PeriodDays replaces the
// fixed 30-day period the app originally hardcoded at subscribe time.
type SubscriptionConfig struct {
	PeriodDays int `mapstructure:"period_days" validate:"min=1"`
}

// CacheConfig sets freshness windows for backend reads.
type CacheConfig struct {
	ProfileTTL time.Duration `mapstructure:"profile_ttl" validate:"min=1s"`
	BalanceTTL time.Duration `mapstructure:"balance_ttl" validate:"min=1s"`
}

type AIConfig struct {
	DailyLimit int `mapstructure:"daily_limit" validate:"min=0"`
}

type LocaleConfig struct {
	DefaultLanguage string `mapstructure:"default_language" validate:"required"`
}

type JobsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
	AIResetSchedule string `mapstructure:"ai_reset_schedule"`
	Concurrency     int    `mapstructure:"concurrency"`
}
