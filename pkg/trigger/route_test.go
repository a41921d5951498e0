package trigger

import (
	"testing"

	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pool    = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	oracle  = common.HexToAddress("0x00000000000000000000000000000000000a0002")
	router  = common.HexToAddress("0x00000000000000000000000000000000000a0003")
	trader  = common.HexToAddress("0x00000000000000000000000000000000000b0001")
	target  = common.HexToAddress("0x00000000000000000000000000000000000c0001")
	slotOne = common.BigToHash(common.Big1)

	swapSelector     = [4]byte{0x02, 0x2c, 0x0d, 0x9f}
	transmitSelector = [4]byte{0x9a, 0x6f, 0xc8, 0xf5}
)

func appliedTx(from common.Address, to common.Address, data []byte) snapshot.AppliedTx {
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{To: &to, Data: data, Gas: 21000})
	return snapshot.AppliedTx{Tx: tx, From: from}
}

func TestRoute(t *testing.T) {
	t.Parallel()

	base := snapshot.Empty(100).Derive(snapshot.StateDiff{
		pool: {Balance: uint256.NewInt(1)},
	}, []snapshot.AppliedTx{appliedTx(trader, router, []byte{0x01, 0x02, 0x03, 0x04})}, 0, false)

	tests := []struct {
		name    string
		diff    snapshot.StateDiff
		txs     []snapshot.AppliedTx
		configs []TriggerConfig
		want    []string
	}{
		{
			name: "watched account balance change",
			diff: snapshot.StateDiff{pool: {Balance: uint256.NewInt(2)}},
			configs: []TriggerConfig{
				{ID: "pool", WatchedAddresses: []common.Address{pool}},
				{ID: "oracle", WatchedAddresses: []common.Address{oracle}},
			},
			want: []string{"pool"},
		},
		{
			name: "unchanged account value does not fire",
			diff: snapshot.StateDiff{pool: {Balance: uint256.NewInt(1)}},
			configs: []TriggerConfig{
				{ID: "pool", WatchedAddresses: []common.Address{pool}},
			},
		},
		{
			name: "watched storage key",
			diff: snapshot.StateDiff{oracle: {Storage: map[common.Hash]common.Hash{slotOne: common.HexToHash("0x2a")}}},
			configs: []TriggerConfig{
				{ID: "other-slot", WatchedStorageKeys: []snapshot.StorageKey{{Address: oracle, Slot: common.HexToHash("0x2")}}},
				{ID: "slot", WatchedStorageKeys: []snapshot.StorageKey{{Address: oracle, Slot: slotOne}}},
			},
			want: []string{"slot"},
		},
		{
			name: "selector of new transaction",
			txs:  []snapshot.AppliedTx{appliedTx(trader, router, append(swapSelector[:], 0xaa))},
			configs: []TriggerConfig{
				{ID: "oracle", WatchedSelectors: [][4]byte{transmitSelector}},
				{ID: "dex", WatchedSelectors: [][4]byte{transmitSelector, swapSelector}},
			},
			want: []string{"dex"},
		},
		{
			name: "selector of already seen transaction does not fire",
			txs:  []snapshot.AppliedTx{appliedTx(trader, pool, nil)},
			configs: []TriggerConfig{
				{ID: "old-selector", WatchedSelectors: [][4]byte{{0x01, 0x02, 0x03, 0x04}}},
			},
		},
		{
			name: "sender and recipient of new transaction",
			txs:  []snapshot.AppliedTx{appliedTx(trader, oracle, nil)},
			configs: []TriggerConfig{
				{ID: "by-sender", WatchedAddresses: []common.Address{trader}},
				{ID: "by-recipient", WatchedAddresses: []common.Address{oracle}},
				{ID: "router", WatchedAddresses: []common.Address{router}},
			},
			want: []string{"by-sender", "by-recipient"},
		},
		{
			name: "failed transaction still routes by selector",
			txs: []snapshot.AppliedTx{func() snapshot.AppliedTx {
				tx := appliedTx(trader, oracle, transmitSelector[:])
				tx.Failed = true
				return tx
			}()},
			configs: []TriggerConfig{
				{ID: "oracle", WatchedSelectors: [][4]byte{transmitSelector}},
			},
			want: []string{"oracle"},
		},
		{
			name: "empty watch set never fires",
			diff: snapshot.StateDiff{pool: {Balance: uint256.NewInt(5)}},
			configs: []TriggerConfig{
				{ID: "nothing", TargetContract: target},
			},
		},
		{
			name: "duplicate id keeps first match in order",
			diff: snapshot.StateDiff{pool: {Balance: uint256.NewInt(5)}},
			txs:  []snapshot.AppliedTx{appliedTx(trader, router, swapSelector[:])},
			configs: []TriggerConfig{
				{ID: "b", WatchedSelectors: [][4]byte{swapSelector}},
				{ID: "a", WatchedAddresses: []common.Address{pool}, LowerBound: 1},
				{ID: "a", WatchedAddresses: []common.Address{pool}, LowerBound: 2},
			},
			want: []string{"b", "a"},
		},
		{
			name: "no change",
			configs: []TriggerConfig{
				{ID: "pool", WatchedAddresses: []common.Address{pool}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := base.Derive(tt.diff, tt.txs, 1, false)
			got := Route(base, next, tt.configs)

			ids := make([]string, 0, len(got))
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
			if len(tt.want) > 0 {
				assert.Equal(t, tt.want, ids)
			}
		})
	}
}

func TestRoute_DuplicateKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	next := snapshot.Empty(1).Derive(snapshot.StateDiff{pool: {Balance: uint256.NewInt(1)}}, nil, 0, false)
	got := Route(nil, next, []TriggerConfig{
		{ID: "a", WatchedAddresses: []common.Address{pool}, LowerBound: 1},
		{ID: "a", WatchedAddresses: []common.Address{pool}, LowerBound: 2},
	})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].LowerBound)
}

func TestRoute_NewBlockTreatsWholeWindowAsDelta(t *testing.T) {
	t.Parallel()

	old := snapshot.Empty(1).Derive(snapshot.StateDiff{pool: {Balance: uint256.NewInt(1)}}, nil, 3, false)
	next := snapshot.Empty(2).Derive(snapshot.StateDiff{pool: {Balance: uint256.NewInt(1)}}, nil, 0, false)

	got := Route(old, next, []TriggerConfig{{ID: "pool", WatchedAddresses: []common.Address{pool}}})
	require.Len(t, got, 1)
}

func TestSelectorSet(t *testing.T) {
	t.Parallel()

	oracleSet, err := SelectorSet("oracle")
	require.NoError(t, err)
	assert.Contains(t, oracleSet, transmitSelector)

	dexSet, err := SelectorSet("dex")
	require.NoError(t, err)
	assert.Contains(t, dexSet, swapSelector)

	// Callers get a copy.
	dexSet[0] = [4]byte{}
	again, err := SelectorSet("dex")
	require.NoError(t, err)
	assert.Equal(t, swapSelector, again[0])

	_, err = SelectorSet("nft")
	require.ErrorContains(t, err, "unknown selector set")
}
