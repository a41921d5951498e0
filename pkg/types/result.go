package types

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SearchResult is the outcome of one search task. It carries everything the
// submission side needs to build and price the winning transaction.
type SearchResult struct {
	ID             string         `json:"id"`
	ConfigID       string         `json:"configId"`
	TargetContract common.Address `json:"targetContract"`
	BlockNumber    uint64         `json:"blockNumber"`
	SnapshotIndex  uint64         `json:"snapshotIndex"`
	GapRecovered   bool           `json:"gapRecovered"`

	BestQuantity   uint64        `json:"bestQuantity"`
	BestProfit     *big.Int      `json:"bestProfit"` // signed, wei
	TestsPerformed int           `json:"testsPerformed"`
	GasUsed        uint64        `json:"gasUsed"`
	Calldata       hexutil.Bytes `json:"calldata"`

	TimedOut    bool          `json:"timedOut"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completedAt"`
}

// Profitable reports whether the result found a strictly positive profit.
func (r *SearchResult) Profitable() bool {
	return r.BestProfit != nil && r.BestProfit.Sign() > 0
}

func (r *SearchResult) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *SearchResult) Unmarshal(data []byte) error {
	return json.Unmarshal(data, r)
}
