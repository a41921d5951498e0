package results

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/backrunner/pkg/clickhouse/testutils"
	"github.com/ava-labs/backrunner/pkg/types"
)

func sampleResult() *types.SearchResult {
	return &types.SearchResult{
		ID:             "4b1f3c2e-8e4f-4a57-b1a0-0c1e9b0d7f11",
		ConfigID:       "oracle-eth",
		TargetContract: common.HexToAddress("0x00000000000000000000000000000000000000Cd"),
		BlockNumber:    100,
		SnapshotIndex:  4,
		BestQuantity:   614,
		BestProfit:     big.NewInt(500),
		TestsPerformed: 9,
		GasUsed:        900_000,
		Calldata:       []byte{0x00, 0x00, 0x02, 0x66},
		Duration:       1500 * time.Microsecond,
		CompletedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewRepository_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRepository(nil, "search_results")
	require.ErrorContains(t, err, "invalid client")

	_, err = NewRepository(testutils.NewTestClient(&testutils.MockConn{}, zap.NewNop().Sugar()), "")
	require.ErrorContains(t, err, "invalid table name")
}

func TestRepository_CreateTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		execErr     error
		wantErr     bool
		errContains string
	}{
		{name: "success"},
		{name: "exec failure", execErr: errors.New("readonly"), wantErr: true, errContains: "failed to create table search_results"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conn := &testutils.MockConn{}
			conn.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
				return strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS search_results (") &&
					strings.Contains(q, "best_profit Int256")
			})).Return(tt.execErr).Once()

			repo, err := NewRepository(testutils.NewTestClient(conn, zap.NewNop().Sugar()), "search_results")
			require.NoError(t, err)

			err = repo.CreateTable(t.Context())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.errContains)
			} else {
				require.NoError(t, err)
			}
			conn.AssertExpectations(t)
		})
	}
}

func TestRepository_Write(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	conn := &testutils.MockConn{}
	conn.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.HasPrefix(q, "INSERT INTO search_results (")
	}),
		"4b1f3c2e-8e4f-4a57-b1a0-0c1e9b0d7f11",
		"oracle-eth",
		"0x00000000000000000000000000000000000000cd",
		uint64(100),
		uint64(4),
		false,
		uint64(614),
		big.NewInt(500),
		uint32(9),
		uint64(900_000),
		"0x00000266",
		false,
		1.5,
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	).Return(nil).Once()

	repo, err := NewRepository(testutils.NewTestClient(conn, zap.NewNop().Sugar()), "search_results")
	require.NoError(t, err)

	require.NoError(t, repo.Write(t.Context(), result))
	conn.AssertExpectations(t)
}

func TestRepository_Write_NilProfitStoredAsZero(t *testing.T) {
	t.Parallel()

	result := sampleResult()
	result.BestProfit = nil

	conn := &testutils.MockConn{}
	conn.On("Exec", mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, big.NewInt(0), mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything,
	).Return(nil).Once()

	repo, err := NewRepository(testutils.NewTestClient(conn, zap.NewNop().Sugar()), "search_results")
	require.NoError(t, err)

	require.NoError(t, repo.Write(t.Context(), result))
	conn.AssertExpectations(t)
}

func TestRepository_Write_Errors(t *testing.T) {
	t.Parallel()

	conn := &testutils.MockConn{}
	conn.On("Exec", mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything,
	).Return(errors.New("too many parts")).Once()

	repo, err := NewRepository(testutils.NewTestClient(conn, zap.NewNop().Sugar()), "search_results")
	require.NoError(t, err)

	err = repo.Write(t.Context(), sampleResult())
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to write search result 4b1f3c2e")
	assert.ErrorContains(t, err, "too many parts")

	require.ErrorContains(t, repo.Write(t.Context(), nil), "invalid result")
}
