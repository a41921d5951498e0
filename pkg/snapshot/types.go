package snapshot

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Account is the accumulated view of one account in the window.
// Fields not touched by any applied transaction keep their zero value and are
// left to the execution provider's base state.
type Account struct {
	Balance *uint256.Int // nil: untouched
	Nonce   *uint64      // nil: untouched
	Code    []byte       // nil: untouched
	Storage map[common.Hash]common.Hash
}

// AccountDiff is the post-state of one account after a transaction.
// Nil fields are unchanged.
type AccountDiff struct {
	Balance *uint256.Int
	Nonce   *uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// StateDiff maps touched accounts to their post-state.
type StateDiff map[common.Address]AccountDiff

// StorageKey identifies a single storage slot.
type StorageKey struct {
	Address common.Address
	Slot    common.Hash
}

// AppliedTx is a transaction folded into the window.
// Failed transactions did not contribute to state but are kept for trigger analysis.
type AppliedTx struct {
	Tx     *types.Transaction
	From   common.Address
	Failed bool
}

// Selector returns the leading four bytes of the calldata, or false when the
// calldata is shorter than a selector.
func (a AppliedTx) Selector() ([4]byte, bool) {
	var sel [4]byte
	data := a.Tx.Data()
	if len(data) < 4 {
		return sel, false
	}
	copy(sel[:], data[:4])
	return sel, true
}
