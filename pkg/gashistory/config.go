package gashistory

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Config holds the gas history backend and filter settings.
type Config struct {
	// Backend is "redis" or "memory".
	Backend       string        `env:"GAS_HISTORY_BACKEND" envDefault:"memory"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	Namespace     string        `env:"GAS_HISTORY_NAMESPACE" envDefault:"mev:gas"`
	TTL           time.Duration `env:"GAS_HISTORY_TTL" envDefault:"1h"`
	Alpha         float64       `env:"GAS_HISTORY_ALPHA" envDefault:"0.05"`
	TargetGas     uint64        `env:"GAS_HISTORY_TARGET_GAS" envDefault:"35000000"`
}

// LoadConfig reads Config from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse gas history config: %w", err)
	}
	return cfg, nil
}

// RedisOptions returns client options for the configured Redis server.
func (c Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
