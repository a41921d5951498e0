package snapshot

import (
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

// Snapshot is an immutable cumulative state for one block window.
type Snapshot struct {
	blockNumber  uint64
	index        uint64
	gapRecovered bool

	// accounts is shared with parent and child versions. Entries are replaced, never mutated.
	accounts map[common.Address]*Account
	txs      []AppliedTx
}

// Empty returns the base snapshot of a new window.
func Empty(blockNumber uint64) *Snapshot {
	return &Snapshot{
		blockNumber: blockNumber,
		accounts:    make(map[common.Address]*Account),
	}
}

// Derive returns a new snapshot with diff merged and txs appended.
// The receiver is not modified.
func (s *Snapshot) Derive(diff StateDiff, txs []AppliedTx, index uint64, gapRecovered bool) *Snapshot {
	next := &Snapshot{
		blockNumber:  s.blockNumber,
		index:        index,
		gapRecovered: s.gapRecovered || gapRecovered,
		accounts:     s.accounts,
		txs:          s.txs,
	}
	if len(diff) > 0 {
		next.accounts = maps.Clone(s.accounts)
		for addr, d := range diff {
			next.accounts[addr] = merge(s.accounts[addr], d)
		}
	}
	if len(txs) > 0 {
		// Full slice expression forces a copy so siblings never share a backing array.
		next.txs = append(s.txs[:len(s.txs):len(s.txs)], txs...)
	}
	return next
}

func merge(prev *Account, d AccountDiff) *Account {
	acc := &Account{}
	if prev != nil {
		*acc = *prev
	}
	if d.Balance != nil {
		acc.Balance = d.Balance.Clone()
	}
	if d.Nonce != nil {
		n := *d.Nonce
		acc.Nonce = &n
	}
	if d.Code != nil {
		acc.Code = common.CopyBytes(d.Code)
	}
	if len(d.Storage) > 0 {
		storage := make(map[common.Hash]common.Hash, len(acc.Storage)+len(d.Storage))
		maps.Copy(storage, acc.Storage)
		maps.Copy(storage, d.Storage)
		acc.Storage = storage
	}
	return acc
}

// BlockNumber returns the block the window belongs to.
func (s *Snapshot) BlockNumber() uint64 { return s.blockNumber }

// Index returns the sequence index of the last applied update.
func (s *Snapshot) Index() uint64 { return s.index }

// GapRecovered reports whether any update in the window was applied after a sequence gap.
func (s *Snapshot) GapRecovered() bool { return s.gapRecovered }

// Account returns the accumulated account, or false if the window never touched it.
// The returned value must be treated as read-only.
func (s *Snapshot) Account(addr common.Address) (*Account, bool) {
	acc, ok := s.accounts[addr]
	return acc, ok
}

// Storage returns the accumulated value of a slot, or false if it was never written.
func (s *Snapshot) Storage(addr common.Address, slot common.Hash) (common.Hash, bool) {
	acc, ok := s.accounts[addr]
	if !ok {
		return common.Hash{}, false
	}
	v, ok := acc.Storage[slot]
	return v, ok
}

// NumAccounts returns the number of accounts touched in the window.
func (s *Snapshot) NumAccounts() int { return len(s.accounts) }

// Transactions returns the ordered transaction log. Callers must not modify it.
func (s *Snapshot) Transactions() []AppliedTx { return s.txs }

// Overrides renders the snapshot as a state override set.
// Storage is sent as stateDiff so untouched slots fall through to the base state.
func (s *Snapshot) Overrides() map[common.Address]gethclient.OverrideAccount {
	out := make(map[common.Address]gethclient.OverrideAccount, len(s.accounts))
	for addr, acc := range s.accounts {
		var o gethclient.OverrideAccount
		if acc.Balance != nil {
			o.Balance = acc.Balance.ToBig()
		}
		if acc.Nonce != nil {
			o.Nonce = *acc.Nonce
		}
		o.Code = acc.Code
		if len(acc.Storage) > 0 {
			o.StateDiff = maps.Clone(acc.Storage)
		}
		out[addr] = o
	}
	return out
}
