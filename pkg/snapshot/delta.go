package snapshot

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Delta is what changed between two snapshots of the same window.
// An account with a changed slot is also listed in Accounts.
type Delta struct {
	Accounts map[common.Address]struct{}
	Slots    map[StorageKey]struct{}
	Txs      []AppliedTx
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Accounts) == 0 && len(d.Slots) == 0 && len(d.Txs) == 0
}

// Diff computes the delta from old to next. A nil old, or one from another
// block, is treated as an empty window so the whole of next is the delta.
func Diff(old, next *Snapshot) Delta {
	d := Delta{
		Accounts: make(map[common.Address]struct{}),
		Slots:    make(map[StorageKey]struct{}),
	}
	if next == nil {
		return d
	}
	if old == nil || old.blockNumber != next.blockNumber {
		old = Empty(next.blockNumber)
	}

	for addr, acc := range next.accounts {
		prev := old.accounts[addr]
		if prev == acc {
			continue
		}
		if prev == nil {
			prev = &Account{}
		}
		if accountChanged(prev, acc) {
			d.Accounts[addr] = struct{}{}
		}
		for slot, v := range acc.Storage {
			if pv, ok := prev.Storage[slot]; !ok || pv != v {
				d.Slots[StorageKey{Address: addr, Slot: slot}] = struct{}{}
				d.Accounts[addr] = struct{}{}
			}
		}
	}

	if len(next.txs) > len(old.txs) {
		d.Txs = next.txs[len(old.txs):]
	}
	return d
}

func accountChanged(prev, acc *Account) bool {
	switch {
	case (prev.Balance == nil) != (acc.Balance == nil):
		return true
	case prev.Balance != nil && !prev.Balance.Eq(acc.Balance):
		return true
	case (prev.Nonce == nil) != (acc.Nonce == nil):
		return true
	case prev.Nonce != nil && *prev.Nonce != *acc.Nonce:
		return true
	case !bytes.Equal(prev.Code, acc.Code):
		return true
	}
	return false
}
