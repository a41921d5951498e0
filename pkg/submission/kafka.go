package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ava-labs/backrunner/pkg/kafka"
	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ava-labs/backrunner/pkg/types"
	"go.uber.org/zap"
)

const kafkaSinkName = "kafka"

// Producer is satisfied by *kafka.Producer.
type Producer interface {
	Produce(ctx context.Context, msg kafka.Msg) error
}

// KafkaSink publishes JSON results keyed by target contract, so results for
// one contract stay ordered within a partition.
type KafkaSink struct {
	log      *zap.SugaredLogger
	producer Producer
	topic    string
	metrics  *metrics.Metrics
}

type KafkaOption func(*KafkaSink)

func WithKafkaMetrics(m *metrics.Metrics) KafkaOption {
	return func(s *KafkaSink) {
		s.metrics = m
	}
}

func NewKafkaSink(log *zap.SugaredLogger, producer Producer, topic string, opts ...KafkaOption) (*KafkaSink, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if producer == nil {
		return nil, errors.New("invalid producer: must not be nil")
	}
	if topic == "" {
		return nil, errors.New("invalid topic: must not be empty")
	}
	s := &KafkaSink{
		log:      log,
		producer: producer,
		topic:    topic,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *KafkaSink) Submit(ctx context.Context, result *types.SearchResult) error {
	start := time.Now()
	err := s.submit(ctx, result)
	s.metrics.RecordSubmission(kafkaSinkName, err, time.Since(start).Seconds())
	return err
}

func (s *KafkaSink) submit(ctx context.Context, result *types.SearchResult) error {
	if result == nil {
		return errors.New("invalid result: must not be nil")
	}
	value, err := result.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal search result: %w", err)
	}

	err = s.producer.Produce(ctx, kafka.Msg{
		Topic:   s.topic,
		Key:     []byte(strings.ToLower(result.TargetContract.Hex())),
		Value:   value,
		Headers: headers(result),
	})
	if err != nil {
		return fmt.Errorf("failed to produce search result %s: %w", result.ID, err)
	}

	s.log.Debugw("search result produced",
		"topic", s.topic,
		"id", result.ID,
		"configID", result.ConfigID,
	)
	return nil
}
