package engine

import (
	"context"
	"math/big"

	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

// Executor simulates transactions and calls on top of a window snapshot.
// The base state is the provider's latest finalized block.
type Executor interface {
	// ExecuteTx simulates tx sent by from and returns its post-state diff.
	// A revert is reported through TxResult.Reverted, not as an error.
	ExecuteTx(ctx context.Context, snap *snapshot.Snapshot, tx *types.Transaction, from common.Address) (TxResult, error)
	// Call performs a read-only simulation of msg.
	Call(ctx context.Context, snap *snapshot.Snapshot, msg CallMsg) (CallResult, error)
}

// TxResult is the outcome of simulating one transaction.
type TxResult struct {
	Diff     snapshot.StateDiff
	GasUsed  uint64
	Reverted bool
}

// CallMsg is a simulated message call.
type CallMsg struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Gas   uint64
	Value *big.Int
	// Overrides are layered on top of the snapshot state, e.g. to fund a synthetic caller.
	Overrides map[common.Address]gethclient.OverrideAccount
}

// CallResult is the outcome of a simulated call.
type CallResult struct {
	Reverted   bool
	ReturnData []byte
	GasUsed    uint64
}
