package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Backend     BackendConfig  `mapstructure:"backend"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Feedback    FeedbackConfig `mapstructure:"feedback"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// BackendConfig configures the remote ACMG/risk evaluation service
type BackendConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Origin      string        `mapstructure:"origin"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	RateLimit   int           `mapstructure:"rate_limit"` // requests per second
	RateBurst   int           `mapstructure:"rate_burst"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker guarding backend calls
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// CacheConfig represents catalog and session cache configuration
type CacheConfig struct {
	CatalogSize int           `mapstructure:"catalog_size"`
	CatalogTTL  time.Duration `mapstructure:"catalog_ttl"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	RedisURL    string        `mapstructure:"redis_url"` // optional shared catalog tier
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// FeedbackConfig selects where accepted verdicts are recorded
type FeedbackConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite", "postgres"
	DataDir     string `mapstructure:"data_dir"`
	DatabaseURL string `mapstructure:"database_url"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
