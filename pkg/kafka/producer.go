package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const queueFullRetryDelay = time.Second

// errQueueFull marks an enqueue failure that is retried after queueFullRetryDelay.
var errQueueFull = errors.New("local producer queue full")

// Msg is one record handed to Produce.
type Msg struct {
	Topic   string
	Value   []byte
	Key     []byte
	Headers map[string]string
}

// Producer publishes records and waits for their delivery reports.
//
// One background goroutine drains librdkafka events and, when
// go.logs.channel.enable is set, client logs. Close must be called once the
// producer is no longer needed.
type Producer struct {
	producer *kafka.Producer
	log      *zap.SugaredLogger
	logs     <-chan kafka.LogEvent // nil when client logs are disabled
	errCh    chan error
	closing  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewProducer creates a Producer from a librdkafka config map.
// The background goroutine stops when ctx is done or Close is called.
func NewProducer(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*Producer, error) {
	if conf == nil {
		return nil, errors.New("invalid config: must not be nil")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	logsEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		return nil, fmt.Errorf("failed to get go.logs.channel.enable: %w", err)
	}

	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	q := &Producer{
		producer: p,
		log:      log,
		errCh:    make(chan error, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	if enabled, _ := logsEnabled.(bool); enabled {
		q.logs = p.Logs()
	}
	go q.drain(ctx)
	return q, nil
}

// Produce enqueues msg and blocks until its delivery report arrives or ctx is
// done. When ctx ends first the record may still be delivered afterwards.
func (q *Producer) Produce(ctx context.Context, msg Msg) error {
	report := make(chan kafka.Event, 1)
	km := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &msg.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toHeaders(msg.Headers),
	}

	if err := q.enqueue(ctx, km, report); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-report:
		return handleDeliveryEvent(q.log, km, ev)
	}
}

func (q *Producer) enqueue(ctx context.Context, km *kafka.Message, report chan kafka.Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := classifyProduceError(q.producer.Produce(km, report))
		if !errors.Is(err, errQueueFull) {
			return err
		}
		q.log.Warnw("producer queue full, retrying",
			"topic", *km.TopicPartition.Topic,
			"delay", queueFullRetryDelay,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(queueFullRetryDelay):
		}
	}
}

// Admin returns an admin client sharing the producer's connection.
func (q *Producer) Admin() (*kafka.AdminClient, error) {
	admin, err := kafka.NewAdminClientFromProducer(q.producer)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	return admin, nil
}

// Close stops the background goroutine and flushes queued records for at most
// timeout. Records still queued afterwards are lost. Only the first call has
// an effect.
func (q *Producer) Close(timeout time.Duration) {
	q.once.Do(func() {
		q.log.Info("closing kafka producer")
		close(q.closing)
		<-q.done

		if pending := q.producer.Flush(int(timeout.Milliseconds())); pending > 0 {
			q.log.Warnw("flush incomplete, messages will be lost", "pending", pending)
		}
		q.producer.Close()
		close(q.errCh)
		q.log.Info("kafka producer closed")
	})
}

// Errors returns a channel that receives at most one fatal error and is
// closed by Close. The producer is unusable after a fatal error.
func (q *Producer) Errors() <-chan error {
	return q.errCh
}

func (q *Producer) drain(ctx context.Context) {
	defer close(q.done)
	events := q.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closing:
			return
		case entry, ok := <-q.logs:
			if !ok {
				q.logs = nil
				continue
			}
			q.log.Debugw("librdkafka",
				"level", entry.Level,
				"tag", entry.Tag,
				"message", entry.Message,
			)
		case ev, ok := <-events:
			if !ok {
				q.fail(errors.New("kafka producer event channel closed"))
				return
			}
			if err := checkEvent(q.log, ev); err != nil {
				q.fail(err)
				return
			}
		}
	}
}

func (q *Producer) fail(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnw("error channel is full", "error", err)
	}
}

// checkEvent logs a producer-level event and returns an error only for
// failures that leave the producer unusable.
func checkEvent(log *zap.SugaredLogger, ev kafka.Event) error {
	switch e := ev.(type) {
	case *kafka.Message:
		// Delivery reports go to the per-record channel.
		log.Warnw("unexpected delivery report on events channel",
			"topicPartition", e.TopicPartition.String(),
		)
	case kafka.Error:
		if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
			return fmt.Errorf("fatal kafka error %#x: %w", e.Code(), e)
		}
		log.Warnw("ignoring kafka error", "code", e.Code(), "error", e)
	default:
		log.Debugw("ignoring kafka event", "event", e.String())
	}
	return nil
}

// classifyProduceError maps an enqueue error to errQueueFull or a terminal
// error. nil stays nil.
func classifyProduceError(err error) error {
	if err == nil {
		return nil
	}
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return fmt.Errorf("failed to produce: %w", err)
	}
	switch kerr.Code() {
	case kafka.ErrQueueFull:
		return errQueueFull
	case kafka.ErrBrokerNotAvailable:
		return fmt.Errorf("broker not available: %w", err)
	case kafka.ErrInvalidMsgSize:
		return fmt.Errorf("invalid message size: %w", err)
	case kafka.ErrInvalidMsg:
		return fmt.Errorf("invalid message: %w", err)
	case kafka.ErrUnknownTopicOrPart:
		return fmt.Errorf("unknown topic or partition: %w", err)
	case kafka.ErrAuthentication:
		return fmt.Errorf("authentication error: %w", err)
	default:
		return fmt.Errorf("failed to produce: %w", err)
	}
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	e, ok := ev.(*kafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
	if err := e.TopicPartition.Error; err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	log.Debugw("delivered",
		"topic", *msg.TopicPartition.Topic,
		"partition", e.TopicPartition.Partition,
		"offset", e.TopicPartition.Offset,
	)
	return nil
}

// toHeaders converts a header map into kafka headers ordered by key.
func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	return out
}
