package trigger

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ava-labs/backrunner/pkg/optimizer"
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
triggers:
  - id: weth-usdc
    target: "0x00000000000000000000000000000000000c0001"
    default_value: 1000
    lower_bound: 1
    upper_bound: 100000
    strategy: hybrid
    max_iterations: 64
    deadline: 5s
    min_profit: "1000000000"
    watch:
      addresses: ["0x00000000000000000000000000000000000a0001"]
      selectors: ["0x022c0d9f"]
      storage_keys:
        - address: "0x00000000000000000000000000000000000a0002"
          slot: "0x1"
  - id: oracle-liquidations
    target: "0x00000000000000000000000000000000000c0002"
    default_value: 10
    lower_bound: 500
    upper_bound: 100
    watch:
      selector_sets: [oracle]
`

func TestLoadConfigs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "triggers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

	configs, err := LoadConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	first := configs[0]
	assert.Equal(t, "weth-usdc", first.ID)
	assert.Equal(t, target, first.TargetContract)
	assert.Equal(t, uint64(1000), first.DefaultValue)
	assert.Equal(t, uint64(1), first.LowerBound)
	assert.Equal(t, uint64(100000), first.UpperBound)
	assert.Equal(t, optimizer.StrategyHybrid, first.Strategy)
	assert.Equal(t, 64, first.MaxIterations)
	assert.Equal(t, 5*time.Second, first.Deadline)
	assert.Equal(t, 0, first.MinProfit.Cmp(big.NewInt(1_000_000_000)))
	assert.Equal(t, []common.Address{pool}, first.WatchedAddresses)
	assert.Equal(t, [][4]byte{swapSelector}, first.WatchedSelectors)
	assert.Equal(t, []snapshot.StorageKey{{Address: oracle, Slot: slotOne}}, first.WatchedStorageKeys)
	assert.False(t, first.Degenerate())

	second := configs[1]
	assert.True(t, second.Degenerate(), "inverted bounds are loaded and flagged")
	assert.Contains(t, second.WatchedSelectors, transmitSelector)
	assert.Nil(t, second.MinProfit)
	assert.Equal(t, optimizer.Strategy(""), second.Strategy)
}

func TestLoadConfigs_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadConfigs(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read trigger config")
}

func TestParseConfigs_Validation(t *testing.T) {
	t.Parallel()

	const target = `target: "0x00000000000000000000000000000000000c0001"`
	tests := []struct {
		name        string
		yaml        string
		wantErr     bool
		errContains string
	}{
		{
			name: "ok: minimal",
			yaml: "triggers:\n  - id: a\n    " + target + "\n",
		},
		{
			name:        "error: empty id",
			yaml:        "triggers:\n  - " + target + "\n",
			wantErr:     true,
			errContains: "invalid id",
		},
		{
			name:        "error: duplicate id",
			yaml:        "triggers:\n  - id: a\n    " + target + "\n  - id: a\n    " + target + "\n",
			wantErr:     true,
			errContains: "duplicate id",
		},
		{
			name:        "error: bad target",
			yaml:        "triggers:\n  - id: a\n    target: nope\n",
			wantErr:     true,
			errContains: "invalid target",
		},
		{
			name:        "error: selector too long",
			yaml:        "triggers:\n  - id: a\n    " + target + "\n    watch:\n      selectors: [\"0x022c0d9f00\"]\n",
			wantErr:     true,
			errContains: "invalid watched selector",
		},
		{
			name:        "error: selector too short",
			yaml:        "triggers:\n  - id: a\n    " + target + "\n    watch:\n      selectors: [\"0x022c\"]\n",
			wantErr:     true,
			errContains: "must be 4 bytes",
		},
		{
			name:        "error: unknown selector set",
			yaml:        "triggers:\n  - id: a\n    " + target + "\n    watch:\n      selector_sets: [nft]\n",
			wantErr:     true,
			errContains: "unknown selector set",
		},
		{
			name:        "error: bad storage slot",
			yaml:        "triggers:\n  - id: a\n    " + target + "\n    watch:\n      storage_keys:\n        - address: \"0x00000000000000000000000000000000000a0002\"\n          slot: \"0xzz\"\n",
			wantErr:     true,
			errContains: "invalid storage key slot",
		},
		{
			name:        "error: unknown strategy",
			yaml:        "triggers:\n  - id: a\n    " + target + "\n    strategy: annealing\n",
			wantErr:     true,
			errContains: "unknown strategy",
		},
		{
			name:        "error: min profit not an integer",
			yaml:        "triggers:\n  - id: a\n    " + target + "\n    min_profit: \"1.5\"\n",
			wantErr:     true,
			errContains: "invalid min_profit",
		},
		{
			name:        "error: malformed yaml",
			yaml:        "triggers: [",
			wantErr:     true,
			errContains: "yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			configs, err := ParseConfigs([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			require.Len(t, configs, 1)
		})
	}
}
