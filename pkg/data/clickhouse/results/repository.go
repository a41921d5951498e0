package results

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ava-labs/backrunner/pkg/clickhouse"
	"github.com/ava-labs/backrunner/pkg/types"
)

const createTableQuery = `CREATE TABLE IF NOT EXISTS %s (
    id String,
    config_id LowCardinality(String),
    target_contract FixedString(42),
    block_number UInt64,
    snapshot_index UInt64,
    gap_recovered Bool,
    best_quantity UInt64,
    best_profit Int256,
    tests_performed UInt32,
    gas_used UInt64,
    calldata String,
    timed_out Bool,
    duration_ms Float64,
    completed_at DateTime64(3, 'UTC')
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(completed_at)
ORDER BY (config_id, block_number, snapshot_index, id)`

const insertQuery = `INSERT INTO %s (
    id, config_id, target_contract, block_number, snapshot_index, gap_recovered,
    best_quantity, best_profit, tests_performed, gas_used, calldata, timed_out,
    duration_ms, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Repository stores one row per finished search for offline analysis.
type Repository struct {
	client    clickhouse.Client
	tableName string
}

func NewRepository(client clickhouse.Client, tableName string) (*Repository, error) {
	if client == nil {
		return nil, errors.New("invalid client: must not be nil")
	}
	if tableName == "" {
		return nil, errors.New("invalid table name: must not be empty")
	}
	return &Repository{client: client, tableName: tableName}, nil
}

// CreateTable creates the results table if it does not exist.
func (r *Repository) CreateTable(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, fmt.Sprintf(createTableQuery, r.tableName)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.tableName, err)
	}
	return nil
}

func (r *Repository) Write(ctx context.Context, result *types.SearchResult) error {
	if result == nil {
		return errors.New("invalid result: must not be nil")
	}

	profit := result.BestProfit
	if profit == nil {
		profit = new(big.Int)
	}

	err := r.client.Conn().Exec(ctx, fmt.Sprintf(insertQuery, r.tableName),
		result.ID,
		result.ConfigID,
		strings.ToLower(result.TargetContract.Hex()),
		result.BlockNumber,
		result.SnapshotIndex,
		result.GapRecovered,
		result.BestQuantity,
		profit,
		uint32(result.TestsPerformed),
		result.GasUsed,
		result.Calldata.String(),
		result.TimedOut,
		float64(result.Duration.Microseconds())/1000,
		result.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write search result %s: %w", result.ID, err)
	}
	return nil
}
