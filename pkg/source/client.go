package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ava-labs/backrunner/pkg/types"
)

// Client maintains a websocket subscription to a flashblocks endpoint and
// reconnects with exponential backoff when it drops.
type Client struct {
	log     *zap.SugaredLogger
	cfg     Config
	dialer  *websocket.Dialer
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records connection and message metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// NewClient validates cfg and returns a Client that connects on Subscribe.
func NewClient(log *zap.SugaredLogger, cfg Config, opts ...Option) (*Client, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		log:    log,
		cfg:    cfg.withDefaults(),
		dialer: websocket.DefaultDialer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Subscribe streams decoded updates into out until ctx is done. It returns
// ctx.Err() on shutdown; connection failures are retried indefinitely.
func (c *Client) Subscribe(ctx context.Context, out chan<- types.UpdateEvent) error {
	backoff := c.cfg.MinBackoff
	for {
		connected, err := c.stream(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = c.cfg.MinBackoff
		}

		c.metrics.IncSourceReconnects()
		c.log.Warnw("flashblocks connection lost, reconnecting",
			"url", c.cfg.URL,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

// stream runs one connection. connected reports whether the dial succeeded.
func (c *Client) stream(ctx context.Context, out chan<- types.UpdateEvent) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	c.log.Infow("connected to flashblocks stream", "url", c.cfg.URL)

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return true, fmt.Errorf("failed to set read deadline: %w", err)
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("failed to read message: %w", err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		ev, err := Decode(data, c.now())
		c.metrics.RecordSourceMessage(err)
		if err != nil {
			c.log.Warnw("skipping undecodable flashblock",
				"bytes", len(data),
				"error", err,
			)
			continue
		}

		c.log.Debugw("received flashblock",
			"block", ev.BlockNumber,
			"index", ev.Index,
			"txs", len(ev.Transactions),
		)

		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case out <- ev:
		}
	}
}
