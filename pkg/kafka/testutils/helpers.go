package testutils

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger returns a sugared logger that writes to t.
func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewDeliveryReport builds the *kafka.Message librdkafka hands back for a
// produced record. A non-nil err marks the delivery as failed.
func NewDeliveryReport(topic string, partition int32, offset int64, err error) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: partition,
			Offset:    kafka.Offset(offset),
			Error:     err,
		},
	}
}
