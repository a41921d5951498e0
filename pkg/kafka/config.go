package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	DefaultFlushTimeout   = 15 * time.Second
	DefaultMessageTimeout = 30 * time.Second
)

// ProducerConfig holds the configuration for the results producer.
type ProducerConfig struct {
	BootstrapServers  string         `env:"KAFKA_BOOTSTRAP_SERVERS"    envDefault:"localhost:9092"`  // Kafka broker addresses
	Topic             string         `env:"KAFKA_RESULTS_TOPIC"        envDefault:"search-results"`  // Topic search results are published to
	ClientID          string         `env:"KAFKA_CLIENT_ID"            envDefault:"backrunner"`      // Client identifier reported to brokers
	Acks              string         `env:"KAFKA_ACKS"                 envDefault:"all"`             // Required acknowledgements
	Compression       string         `env:"KAFKA_COMPRESSION"          envDefault:"lz4"`             // Compression codec
	Linger            time.Duration  `env:"KAFKA_LINGER"               envDefault:"5ms"`             // Batching delay
	NumPartitions     int            `env:"KAFKA_TOPIC_PARTITIONS"     envDefault:"1"`               // Partitions when provisioning the topic
	ReplicationFactor int            `env:"KAFKA_TOPIC_REPLICATION"    envDefault:"1"`               // Replication factor when provisioning the topic
	CreateTopic       bool           `env:"KAFKA_CREATE_TOPIC"         envDefault:"false"`           // Provision the topic on startup
	MessageTimeout    *time.Duration `env:"KAFKA_MESSAGE_TIMEOUT"`                                   // Delivery timeout per message
	FlushTimeout      *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"`                                     // Flush timeout on shutdown
	EnableLogs        bool           `env:"KAFKA_ENABLE_LOGS"          envDefault:"false"`           // Enable librdkafka client logs
	SASL              SASLConfig     `envPrefix:"KAFKA_"`
}

// SASLConfig holds optional SASL authentication settings. It is ignored
// unless Username is set.
type SASLConfig struct {
	Username         string `env:"SASL_USERNAME"`
	Password         string `env:"SASL_PASSWORD"`
	Mechanism        string `env:"SASL_MECHANISM"    envDefault:"SCRAM-SHA-512"` // SCRAM-SHA-256, SCRAM-SHA-512 or PLAIN
	SecurityProtocol string `env:"SECURITY_PROTOCOL" envDefault:"SASL_SSL"`      // SASL_SSL or SASL_PLAINTEXT
}

func (s SASLConfig) Enabled() bool {
	return s.Username != ""
}

// ApplyToConfigMap adds the SASL settings to cm when enabled.
func (s SASLConfig) ApplyToConfigMap(cm *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	(*cm)["security.protocol"] = s.SecurityProtocol
	(*cm)["sasl.mechanisms"] = s.Mechanism
	(*cm)["sasl.username"] = s.Username
	(*cm)["sasl.password"] = s.Password
}

// LoadProducerConfig loads Kafka producer configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	var cfg ProducerConfig
	if err := env.Parse(&cfg); err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to parse kafka producer config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults returns a copy of the config with default values filled in for any nil pointer fields.
// This method does not mutate the original config.
func (c ProducerConfig) WithDefaults() ProducerConfig {
	if c.MessageTimeout == nil {
		timeout := DefaultMessageTimeout
		c.MessageTimeout = &timeout
	}
	if c.FlushTimeout == nil {
		timeout := DefaultFlushTimeout
		c.FlushTimeout = &timeout
	}
	return c
}

// TopicConfig returns the provisioning settings for the results topic.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.NumPartitions,
		ReplicationFactor: c.ReplicationFactor,
	}
}

// ConfigMap builds the librdkafka configuration for NewProducer.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	c = c.WithDefaults()
	cm := &kafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"client.id":              c.ClientID,
		"acks":                   c.Acks,
		"compression.type":       c.Compression,
		"linger.ms":              int(c.Linger.Milliseconds()),
		"message.timeout.ms":     int(c.MessageTimeout.Milliseconds()),
		"enable.idempotence":     c.Acks == "all",
		"go.logs.channel.enable": c.EnableLogs,
	}
	c.SASL.ApplyToConfigMap(cm)
	return cm
}
