package config // package config loads application configuration from environment variables

import (
	"fmt"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable; unset variables fall back to the defaults
// documented next to Load.
type Config struct {
	Env      string `validate:"required"`
	Host     string `validate:"omitempty,ip"` // empty or 0.0.0.0 binds every interface
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"required,oneof=debug info warn error"`
	// LogFile, when set, receives a rotated copy of every log entry.
	LogFile         string
	MetricsEnabled  bool
	ShutdownTimeout time.Duration `validate:"gt=0"`
	Database        DatabaseConfig
	RateLimit       RateLimitConfig
	Redis           RedisConfig
}

// DatabaseConfig describes the backing store of the counter. The default is
// an embedded SQLite file; replicas share state by pointing Path at the same
// file. The mysql driver is available for deployments that prefer a server.
// Path may not contain '?', '#' or '%': the SQLite URI syntax would read them
// as query, fragment or escape and open a different file.
type DatabaseConfig struct {
	Driver          string        `validate:"required,oneof=sqlite mysql"`
	Path            string        `validate:"required_if=Driver sqlite,excludesall=?#%"`
	DSN             string        `validate:"required_if=Driver mysql"`
	BusyTimeout     time.Duration `validate:"gte=0"`
	JournalMode     string        `validate:"oneof=DELETE TRUNCATE PERSIST WAL"`
	MaxOpenConns    int           `validate:"gte=1"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
}

// Addr returns the host:port pair the HTTP server binds to.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Load reads configuration values from environment variables, applies
// defaults and validates the result.
//
//	APP_ENV=dev APP_HOST=0.0.0.0 APP_PORT=5000
//	LOG_LEVEL=info LOG_FILE= METRICS_ENABLED=true SHUTDOWN_TIMEOUT=10s
//	DB_DRIVER=sqlite DB_PATH=counter.db DB_DSN= DB_BUSY_TIMEOUT=5s
//	DB_JOURNAL_MODE=DELETE DB_MAX_OPEN_CONNS=10 DB_MAX_IDLE_CONNS=10
//	DB_CONN_MAX_LIFETIME=30m
//
// Rate limit and Redis variables are documented on LoadRateLimitConfig and
// LoadRedisConfig.
func Load() (Config, error) {
	cfg := Config{
		Env:             envStr("APP_ENV", "dev"),
		Host:            envStr("APP_HOST", "0.0.0.0"),
		Port:            envStr("APP_PORT", "5000"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFile:         envStr("LOG_FILE", ""),
		MetricsEnabled:  envBool("METRICS_ENABLED", true),
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
		Database: DatabaseConfig{
			Driver:          envStr("DB_DRIVER", "sqlite"),
			Path:            envStr("DB_PATH", "counter.db"),
			DSN:             envStr("DB_DSN", ""),
			BusyTimeout:     envDur("DB_BUSY_TIMEOUT", 5*time.Second),
			JournalMode:     envStr("DB_JOURNAL_MODE", "DELETE"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		RateLimit: LoadRateLimitConfig(),
		Redis:     LoadRedisConfig(),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
