package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the service.
type Config struct {
	Port            string        `env:"PORT" envDefault:"3004"`
	RedisURL        string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	JWTSecret       string        `env:"JWT_SECRET"`
	FrontendBaseURL string        `env:"FRONTEND_BASE_URL"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// Queue persistence
	QueueKeyPrefix string        `env:"QUEUE_KEY_PREFIX" envDefault:"queue:"`
	QueueTTL       time.Duration `env:"QUEUE_TTL" envDefault:"24h"`

	// Publish relayed frames to other instances through Redis.
	RelayFanout bool `env:"REALTIME_REDIS_FANOUT" envDefault:"false"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.FrontendBaseURL = strings.TrimRight(strings.TrimSpace(cfg.FrontendBaseURL), "/")
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if c.QueueTTL <= 0 {
		return fmt.Errorf("QUEUE_TTL must be positive, got %s", c.QueueTTL)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.QueueKeyPrefix == "" {
		return errors.New("QUEUE_KEY_PREFIX must not be empty")
	}
	if c.FrontendBaseURL != "" {
		if _, err := url.ParseRequestURI(c.FrontendBaseURL); err != nil {
			return fmt.Errorf("invalid FRONTEND_BASE_URL %q: %w", c.FrontendBaseURL, err)
		}
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// CatalogEnabled reports whether a track catalog database is configured.
func (c *Config) CatalogEnabled() bool {
	return c.DatabaseURL != ""
}
