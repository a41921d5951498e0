package testutils

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// MockConn mocks the driver.Conn calls made by the client and the result
// repository. Query arguments are flattened into the recorded call after ctx
// and query. Any other driver.Conn method panics.
type MockConn struct {
	driver.Conn
	mock.Mock
}

func (m *MockConn) Exec(ctx context.Context, query string, args ...any) error {
	callArgs := append([]any{ctx, query}, args...)
	return m.Called(callArgs...).Error(0)
}

func (m *MockConn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockConn) Close() error {
	return m.Called().Error(0)
}
