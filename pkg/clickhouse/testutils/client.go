package testutils

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/ava-labs/backrunner/pkg/clickhouse"
)

// NewTestClient wraps a mock connection in a clickhouse.Client.
func NewTestClient(conn driver.Conn, log *zap.SugaredLogger) clickhouse.Client {
	return clickhouse.NewWithConn(conn, log)
}
