package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ava-labs/backrunner/pkg/types"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsSinkName = "nats"

// Publisher is satisfied by *nats.Conn and by JetStreamPublisher.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// JetStreamPublisher publishes through JetStream and waits for the stream ack.
type JetStreamPublisher struct {
	JS nats.JetStreamContext
}

func (p JetStreamPublisher) PublishMsg(msg *nats.Msg) error {
	_, err := p.JS.PublishMsg(msg)
	return err
}

// NATSSink publishes JSON results to "<prefix>.<config id>".
type NATSSink struct {
	log       *zap.SugaredLogger
	publisher Publisher
	prefix    string
	metrics   *metrics.Metrics
}

type NATSOption func(*NATSSink)

func WithNATSMetrics(m *metrics.Metrics) NATSOption {
	return func(s *NATSSink) {
		s.metrics = m
	}
}

func NewNATSSink(log *zap.SugaredLogger, publisher Publisher, prefix string, opts ...NATSOption) (*NATSSink, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if publisher == nil {
		return nil, errors.New("invalid publisher: must not be nil")
	}
	if prefix == "" {
		return nil, errors.New("invalid subject prefix: must not be empty")
	}
	s := &NATSSink{
		log:       log,
		publisher: publisher,
		prefix:    prefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subject returns the subject results of the given trigger config go to.
func (s *NATSSink) Subject(configID string) string {
	return s.prefix + "." + configID
}

func (s *NATSSink) Submit(ctx context.Context, result *types.SearchResult) error {
	start := time.Now()
	err := s.submit(ctx, result)
	s.metrics.RecordSubmission(natsSinkName, err, time.Since(start).Seconds())
	return err
}

func (s *NATSSink) submit(ctx context.Context, result *types.SearchResult) error {
	if result == nil {
		return errors.New("invalid result: must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := result.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal search result: %w", err)
	}

	msg := nats.NewMsg(s.Subject(result.ConfigID))
	msg.Data = data
	for k, v := range headers(result) {
		msg.Header.Set(k, v)
	}

	if err := s.publisher.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish search result %s: %w", result.ID, err)
	}

	s.log.Debugw("search result published",
		"subject", msg.Subject,
		"id", result.ID,
	)
	return nil
}

// ConnectNATS dials the server with unlimited reconnects.
func ConnectNATS(url string, log *zap.SugaredLogger) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("backrunner"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return conn, nil
}
