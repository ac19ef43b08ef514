// Package config loads service configuration from the environment.
//
// A .env file in the working directory is read first (when present) so local
// development does not need exported variables; real environment variables
// always win.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type ServiceConfig struct {
	Name    string `env:"SERVICE_NAME" envDefault:"game-session-service"`
	Version string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
	Env     string `env:"ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`

	ReadinessDrainDelay string `env:"READINESS_DRAIN_DELAY" envDefault:"5s"`
	ShutdownTimeout     string `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type TracingConfig struct {
	Enabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	Endpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"http://localhost:4318"`
	SampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

type ProfilingConfig struct {
	Enabled  bool   `env:"PROFILING_ENABLED" envDefault:"false"`
	Endpoint string `env:"PYROSCOPE_ENDPOINT" envDefault:"http://localhost:4040"`
}

type StorageConfig struct {
	Driver      string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	Key         string `env:"STORAGE_KEY" envDefault:"jackson_rewards_sessions"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"sessions.db"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass   string `env:"REDIS_PASSWORD"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`

	Timeout time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`
}

type RewardsConfig struct {
	BaseURL string        `env:"REWARDS_BASE_URL" envDefault:"http://localhost:3000"`
	Timeout time.Duration `env:"REWARDS_TIMEOUT" envDefault:"15s"`
}

type SessionConfig struct {
	MaxDuration       time.Duration `env:"SESSION_MAX_DURATION" envDefault:"24h"`
	InactivityTimeout time.Duration `env:"SESSION_INACTIVITY_TIMEOUT" envDefault:"2h"`
	SweepInterval     time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`
}

type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET"`
	JWTIssuer    string `env:"JWT_ISSUER"`
	AdminKeyHash string `env:"ADMIN_KEY_HASH"`
}

type GeoConfig struct {
	UserAgent string `env:"GEO_USER_AGENT" envDefault:"JacksonRewardsApp/1.0"`
}

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Profiling ProfilingConfig
	Storage   StorageConfig
	Rewards   RewardsConfig
	Session   SessionConfig
	Auth      AuthConfig
	Geo       GeoConfig
}

// Load reads .env (if any) and the environment. Parsing errors panic, matching
// how main treats an unusable configuration.
func Load() *Config {
	cfg, err := Parse()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Parse is Load without the panic.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if _, err := time.ParseDuration(c.Service.ReadinessDrainDelay); err != nil {
		errs = append(errs, fmt.Errorf("READINESS_DRAIN_DELAY: %w", err))
	}
	if _, err := time.ParseDuration(c.Service.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.Tracing.SampleRate))
	}

	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis driver"))
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Storage.Key == "" {
		errs = append(errs, errors.New("STORAGE_KEY is required"))
	}
	if c.Storage.Timeout <= 0 {
		errs = append(errs, errors.New("STORAGE_TIMEOUT must be positive"))
	}

	if c.Rewards.BaseURL == "" {
		errs = append(errs, errors.New("REWARDS_BASE_URL is required"))
	}
	if c.Session.MaxDuration <= 0 || c.Session.InactivityTimeout <= 0 || c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session durations must be positive"))
	}

	return errors.Join(errs...)
}

// GetReadinessDrainDelayDuration returns the drain delay, or zero if unparsable.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.Service.ReadinessDrainDelay)
	if err != nil {
		return 0
	}
	return d
}

// GetShutdownTimeoutDuration returns the shutdown timeout, defaulting to 10s.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Service.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
