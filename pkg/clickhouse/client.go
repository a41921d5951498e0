package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client wraps the ClickHouse connection
type Client interface {
	// Conn returns the underlying ClickHouse connection
	Conn() driver.Conn
	// Ping checks the connection to ClickHouse
	Ping(ctx context.Context) error
	// Close closes the connection
	Close() error
}

const defaultPingTimeout = 10 * time.Second

type client struct {
	conn driver.Conn
	log  *zap.SugaredLogger
}

// New opens a connection and pings it. A failed ping closes the connection
// and returns the error, so callers never hold an unusable client.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (Client, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}

	conn, err := clickhouse.Open(cfg.Options(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	c := NewWithConn(conn, log)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Infow("connected to clickhouse",
		"hosts", cfg.Hosts,
		"database", cfg.Database,
	)
	return c, nil
}

// NewWithConn wraps an already opened connection.
func NewWithConn(conn driver.Conn, log *zap.SugaredLogger) Client {
	return &client{conn: conn, log: log}
}

func (c *client) Conn() driver.Conn {
	return c.conn
}

// Ping checks the connection. Server exceptions are logged with their code.
func (c *client) Ping(ctx context.Context) error {
	err := c.conn.Ping(ctx)
	if err == nil {
		return nil
	}

	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		c.log.Errorw("failed to ping ClickHouse",
			"code", exception.Code,
			"message", exception.Message,
		)
	} else {
		c.log.Errorw("failed to ping ClickHouse", "error", err)
	}
	return fmt.Errorf("failed to ping ClickHouse: %w", err)
}

func (c *client) Close() error {
	return c.conn.Close()
}
