package snapshot

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	pool  = common.HexToAddress("0x00000000000000000000000000000000000f0001")
)

func u64(v uint64) *uint64 { return &v }

func testTx(nonce uint64, to common.Address, data []byte) AppliedTx {
	return AppliedTx{
		Tx:   types.NewTx(&types.LegacyTx{Nonce: nonce, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Data: data}),
		From: alice,
	}
}

func TestDerive_DoesNotMutateParent(t *testing.T) {
	t.Parallel()

	base := Empty(100)
	s1 := base.Derive(StateDiff{
		alice: {Balance: uint256.NewInt(10), Nonce: u64(1)},
		pool:  {Storage: map[common.Hash]common.Hash{common.HexToHash("0x1"): common.HexToHash("0xaa")}},
	}, []AppliedTx{testTx(0, pool, nil)}, 0, false)

	s2 := s1.Derive(StateDiff{
		alice: {Balance: uint256.NewInt(7)},
		pool:  {Storage: map[common.Hash]common.Hash{common.HexToHash("0x2"): common.HexToHash("0xbb")}},
	}, []AppliedTx{testTx(1, pool, nil)}, 1, false)

	require.Equal(t, 0, base.NumAccounts())
	require.Empty(t, base.Transactions())

	acc, ok := s1.Account(alice)
	require.True(t, ok)
	assert.Equal(t, uint64(10), acc.Balance.Uint64())
	_, ok = s1.Storage(pool, common.HexToHash("0x2"))
	assert.False(t, ok, "child slot leaked into parent")
	assert.Len(t, s1.Transactions(), 1)

	acc, ok = s2.Account(alice)
	require.True(t, ok)
	assert.Equal(t, uint64(7), acc.Balance.Uint64())
	assert.Equal(t, uint64(1), *acc.Nonce, "untouched field must carry over")
	v, ok := s2.Storage(pool, common.HexToHash("0x1"))
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0xaa"), v)
	assert.Len(t, s2.Transactions(), 2)
	assert.Equal(t, uint64(1), s2.Index())
}

func TestDerive_SiblingsDoNotShareTxLog(t *testing.T) {
	t.Parallel()

	parent := Empty(1).Derive(nil, []AppliedTx{testTx(0, pool, nil)}, 0, false)
	a := parent.Derive(nil, []AppliedTx{testTx(1, pool, []byte{0x01})}, 1, false)
	b := parent.Derive(nil, []AppliedTx{testTx(1, pool, []byte{0x02})}, 1, false)

	assert.Equal(t, []byte{0x01}, a.Transactions()[1].Tx.Data())
	assert.Equal(t, []byte{0x02}, b.Transactions()[1].Tx.Data())
}

func TestDerive_GapFlagIsSticky(t *testing.T) {
	t.Parallel()

	s := Empty(1).Derive(nil, nil, 0, false).Derive(nil, nil, 3, true).Derive(nil, nil, 4, false)
	assert.True(t, s.GapRecovered())
}

func TestDiff(t *testing.T) {
	t.Parallel()

	slot := common.HexToHash("0x5")
	s1 := Empty(7).Derive(StateDiff{
		alice: {Balance: uint256.NewInt(1)},
		bob:   {Nonce: u64(3)},
	}, []AppliedTx{testTx(0, bob, nil)}, 0, false)
	s2 := s1.Derive(StateDiff{
		alice: {Balance: uint256.NewInt(1)}, // same value
		pool:  {Storage: map[common.Hash]common.Hash{slot: common.HexToHash("0x9")}},
	}, []AppliedTx{testTx(1, pool, nil)}, 1, false)

	tests := []struct {
		name         string
		old, next    *Snapshot
		wantAccounts []common.Address
		wantSlots    []StorageKey
		wantTxs      int
	}{
		{
			name:         "nil old is whole window",
			old:          nil,
			next:         s1,
			wantAccounts: []common.Address{alice, bob},
			wantTxs:      1,
		},
		{
			name:         "unchanged values are not reported",
			old:          s1,
			next:         s2,
			wantAccounts: []common.Address{pool},
			wantSlots:    []StorageKey{{Address: pool, Slot: slot}},
			wantTxs:      1,
		},
		{
			name:         "different block is whole window",
			old:          Empty(6).Derive(StateDiff{alice: {Balance: uint256.NewInt(1)}}, nil, 0, false),
			next:         s1,
			wantAccounts: []common.Address{alice, bob},
			wantTxs:      1,
		},
		{
			name: "identical snapshots",
			old:  s2,
			next: s2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Diff(tt.old, tt.next)
			require.Len(t, d.Accounts, len(tt.wantAccounts))
			for _, a := range tt.wantAccounts {
				assert.Contains(t, d.Accounts, a)
			}
			require.Len(t, d.Slots, len(tt.wantSlots))
			for _, k := range tt.wantSlots {
				assert.Contains(t, d.Slots, k)
			}
			assert.Len(t, d.Txs, tt.wantTxs)
			assert.Equal(t, len(tt.wantAccounts) == 0 && tt.wantTxs == 0, d.Empty())
		})
	}
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	slot := common.HexToHash("0x1")
	s := Empty(1).Derive(StateDiff{
		alice: {Balance: uint256.NewInt(42), Nonce: u64(2)},
		pool:  {Code: []byte{0x60, 0x00}, Storage: map[common.Hash]common.Hash{slot: common.HexToHash("0xff")}},
	}, nil, 0, false)

	o := s.Overrides()
	require.Len(t, o, 2)
	assert.Equal(t, big.NewInt(42), o[alice].Balance)
	assert.Equal(t, uint64(2), o[alice].Nonce)
	assert.Nil(t, o[alice].Code)
	assert.Equal(t, []byte{0x60, 0x00}, o[pool].Code)
	assert.Equal(t, common.HexToHash("0xff"), o[pool].StateDiff[slot])
	assert.Nil(t, o[pool].Balance)
}

func TestAppliedTx_Selector(t *testing.T) {
	t.Parallel()

	sel, ok := testTx(0, pool, []byte{0xa9, 0x05, 0x9c, 0xbb, 0x00}).Selector()
	require.True(t, ok)
	assert.Equal(t, [4]byte{0xa9, 0x05, 0x9c, 0xbb}, sel)

	_, ok = testTx(0, pool, []byte{0xa9}).Selector()
	assert.False(t, ok)
}
