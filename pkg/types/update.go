package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// UpdateEvent is one partial-block update. Events of a block carry increasing
// Index values starting at 0.
type UpdateEvent struct {
	BlockNumber  uint64
	Index        uint64
	Timestamp    time.Time
	Transactions [][]byte // EIP-2718 encoded

	// NewAccountBalances are post-update balances reported by the builder, if any.
	NewAccountBalances map[common.Address]*uint256.Int
}
