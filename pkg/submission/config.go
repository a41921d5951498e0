package submission

import (
	"fmt"
	"slices"

	"github.com/caarlos0/env/v11"
)

const (
	SinkKafka = "kafka"
	SinkNATS  = "nats"
)

// Config selects and configures the result sinks. Kafka settings live in
// kafka.ProducerConfig.
type Config struct {
	Sinks             []string `env:"SUBMISSION_SINKS"    envDefault:"kafka" envSeparator:","`
	NATSURL           string   `env:"NATS_URL"            envDefault:"nats://127.0.0.1:4222"`
	NATSSubjectPrefix string   `env:"NATS_SUBJECT_PREFIX" envDefault:"backrunner.results"`
	NATSJetStream     bool     `env:"NATS_JETSTREAM"      envDefault:"false"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse submission config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for _, s := range c.Sinks {
		if s != SinkKafka && s != SinkNATS {
			return fmt.Errorf("invalid sink %q: must be %q or %q", s, SinkKafka, SinkNATS)
		}
	}
	return nil
}

func (c Config) Enabled(sink string) bool {
	return slices.Contains(c.Sinks, sink)
}
