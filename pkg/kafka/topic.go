package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

// TopicAdmin is the subset of *kafka.AdminClient used to provision topics.
type TopicAdmin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, options ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error)
}

// TopicConfig describes the results topic the searcher publishes to.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// EnsureTopic creates the topic when missing and grows its partition count
// when it has fewer than configured. A topic with more partitions than
// configured is reported as an error since partitions cannot be removed.
// Replication factor drift is only logged.
func EnsureTopic(ctx context.Context, admin TopicAdmin, cfg TopicConfig, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	existing, err := lookupTopic(admin, cfg.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		return createTopic(ctx, admin, cfg, log)
	}

	partitions := len(existing.Partitions)
	if rf := replicationFactor(existing); rf != cfg.ReplicationFactor {
		log.Warnw("topic replication factor differs from config",
			"topic", cfg.Name,
			"current", rf,
			"desired", cfg.ReplicationFactor,
		)
	}

	switch {
	case partitions < cfg.NumPartitions:
		return increasePartitions(ctx, admin, cfg, partitions, log)
	case partitions > cfg.NumPartitions:
		return fmt.Errorf("topic %q has %d partitions, more than the configured %d",
			cfg.Name, partitions, cfg.NumPartitions)
	default:
		return nil
	}
}

// lookupTopic returns nil metadata when the topic does not exist.
func lookupTopic(admin TopicAdmin, name string) (*kafka.TopicMetadata, error) {
	md, err := admin.GetMetadata(&name, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", name, err)
	}

	tm, ok := md.Topics[name]
	if !ok || tm.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return nil, nil
	}
	if tm.Error.Code() != kafka.ErrNoError {
		return nil, fmt.Errorf("topic %q has error: %w", name, tm.Error)
	}
	return &tm, nil
}

func createTopic(ctx context.Context, admin TopicAdmin, cfg TopicConfig, log *zap.SugaredLogger) error {
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", cfg.Name, err)
	}

	for _, r := range results {
		switch r.Error.Code() {
		case kafka.ErrNoError:
			log.Infow("created topic",
				"topic", r.Topic,
				"partitions", cfg.NumPartitions,
				"replicationFactor", cfg.ReplicationFactor,
			)
		case kafka.ErrTopicAlreadyExists:
			log.Infow("topic already exists", "topic", r.Topic)
		default:
			return fmt.Errorf("failed to create topic %q: %w", r.Topic, r.Error)
		}
	}
	return nil
}

func increasePartitions(ctx context.Context, admin TopicAdmin, cfg TopicConfig, from int, log *zap.SugaredLogger) error {
	results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{{
		Topic:      cfg.Name,
		IncreaseTo: cfg.NumPartitions,
	}})
	if err != nil {
		return fmt.Errorf("failed to increase partitions for topic %q: %w", cfg.Name, err)
	}

	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", r.Topic, r.Error)
		}
	}
	log.Infow("increased partitions",
		"topic", cfg.Name,
		"from", from,
		"to", cfg.NumPartitions,
	)
	return nil
}

func replicationFactor(md *kafka.TopicMetadata) int {
	if len(md.Partitions) == 0 {
		return 0
	}
	return len(md.Partitions[0].Replicas)
}
