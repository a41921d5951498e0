package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultMinBackoff  = time.Second
	DefaultMaxBackoff  = 30 * time.Second
	DefaultReadTimeout = 30 * time.Second
)

type Config struct {
	URL         string        `env:"FLASHBLOCKS_WS_URL"`
	ReadTimeout time.Duration `env:"FLASHBLOCKS_READ_TIMEOUT" envDefault:"30s"`
	MinBackoff  time.Duration `env:"FLASHBLOCKS_MIN_BACKOFF"  envDefault:"1s"`
	MaxBackoff  time.Duration `env:"FLASHBLOCKS_MAX_BACKOFF"  envDefault:"30s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse source config: %w", err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = max(DefaultMaxBackoff, c.MinBackoff)
	}
	return c
}

func (c Config) validate() error {
	if c.URL == "" {
		return errors.New("invalid url: must not be empty")
	}
	return nil
}
