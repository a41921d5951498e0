package trigger

import (
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
)

// touched is a delta flattened into lookup sets.
type touched struct {
	addresses map[common.Address]struct{}
	slots     map[snapshot.StorageKey]struct{}
	selectors map[[4]byte]struct{}
}

func newTouched(d snapshot.Delta) touched {
	t := touched{
		addresses: make(map[common.Address]struct{}, len(d.Accounts)+2*len(d.Txs)),
		slots:     d.Slots,
		selectors: make(map[[4]byte]struct{}, len(d.Txs)),
	}
	for addr := range d.Accounts {
		t.addresses[addr] = struct{}{}
	}
	for _, tx := range d.Txs {
		t.addresses[tx.From] = struct{}{}
		if tx.Tx == nil {
			continue
		}
		if to := tx.Tx.To(); to != nil {
			t.addresses[*to] = struct{}{}
		}
		if sel, ok := tx.Selector(); ok {
			t.selectors[sel] = struct{}{}
		}
	}
	return t
}

func (t touched) matches(c TriggerConfig) bool {
	for _, addr := range c.WatchedAddresses {
		if _, ok := t.addresses[addr]; ok {
			return true
		}
	}
	for _, key := range c.WatchedStorageKeys {
		if _, ok := t.slots[key]; ok {
			return true
		}
	}
	for _, sel := range c.WatchedSelectors {
		if _, ok := t.selectors[sel]; ok {
			return true
		}
	}
	return false
}

// Route returns the configs triggered by the change from old to next, in input
// order. A config ID appears at most once; the first occurrence wins.
// A nil old or one from an earlier block means all of next is new.
func Route(old, next *snapshot.Snapshot, configs []TriggerConfig) []TriggerConfig {
	d := snapshot.Diff(old, next)
	if d.Empty() {
		return nil
	}
	t := newTouched(d)

	var matched []TriggerConfig
	seen := make(map[string]struct{})
	for _, c := range configs {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		if c.Empty() || !t.matches(c) {
			continue
		}
		seen[c.ID] = struct{}{}
		matched = append(matched, c)
	}
	return matched
}
