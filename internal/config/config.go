// Package config loads runtime configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by CONFIG_FILE, and environment variables (optionally seeded
// from a .env file). Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
	Audit     AuditConfig     `yaml:"audit"`
}

// AppConfig holds process-wide switches.
type AppConfig struct {
	Env string `yaml:"env" env:"APP_ENV"`
	// Debug exposes internal error messages in API responses.
	Debug bool `yaml:"debug" env:"APP_DEBUG"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the SQL store. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string        `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int           `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	LockTimeout     time.Duration `yaml:"lock_timeout" env:"DATABASE_LOCK_TIMEOUT"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE"`
}

// LoggingConfig mirrors logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// RedisConfig enables the default-lookup cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL"`
}

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
	// CleanupSchedule is a cron spec for evicting idle client limiters.
	CleanupSchedule string        `yaml:"cleanup_schedule" env:"RATE_LIMIT_CLEANUP_SCHEDULE"`
	IdleAfter       time.Duration `yaml:"idle_after" env:"RATE_LIMIT_IDLE_AFTER"`
}

// RetryConfig bounds lock-timeout retries.
type RetryConfig struct {
	Attempts int           `yaml:"attempts" env:"RETRY_ATTEMPTS"`
	Delay    time.Duration `yaml:"delay" env:"RETRY_DELAY"`
	MaxDelay time.Duration `yaml:"max_delay" env:"RETRY_MAX_DELAY"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	Capacity int    `yaml:"capacity" env:"AUDIT_CAPACITY"`
	FilePath string `yaml:"file_path" env:"AUDIT_FILE"`
	// MaxAge drops older entries from the in-memory ring on TrimSchedule.
	MaxAge       time.Duration `yaml:"max_age" env:"AUDIT_MAX_AGE"`
	TrimSchedule string        `yaml:"trim_schedule" env:"AUDIT_TRIM_SCHEDULE"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		App: AppConfig{Env: "development"},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			LockTimeout:     2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePrefix: "coopd",
		},
		Redis: RedisConfig{TTL: 30 * time.Second},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
			CleanupSchedule:   "@every 5m",
			IdleAfter:         10 * time.Minute,
		},
		Retry: RetryConfig{
			Attempts: 4,
			Delay:    25 * time.Millisecond,
			MaxDelay: 500 * time.Millisecond,
		},
		Audit: AuditConfig{
			Capacity:     1000,
			MaxAge:       24 * time.Hour,
			TrimSchedule: "@hourly",
		},
	}
}

// Load resolves the configuration from defaults, CONFIG_FILE and the
// environment, then validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := New()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		problems = append(problems, "database.driver is required when a dsn is set")
	}
	if c.Database.LockTimeout < 0 {
		problems = append(problems, "database.lock_timeout must not be negative")
	}
	if c.Retry.Attempts < 1 {
		problems = append(problems, "retry.attempts must be at least 1")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		problems = append(problems, "rate_limit requires positive requests_per_second and burst")
	}
	if c.Audit.Capacity < 0 {
		problems = append(problems, "audit.capacity must not be negative")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not json or text", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
