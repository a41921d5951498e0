package optimizer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          string
		want        Strategy
		wantErr     bool
		errContains string
	}{
		{name: "ok: empty", in: "", want: ""},
		{name: "ok: multiples", in: "multiples", want: StrategyMultiples},
		{name: "ok: logfrac", in: "logfrac", want: StrategyLogFrac},
		{name: "ok: hybrid", in: "hybrid", want: StrategyHybrid},
		{name: "error: unknown", in: "gradient", wantErr: true, errContains: "unknown strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				require.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMultiplesCandidates(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []uint64{614, 307, 153, 102, 1228, 2456, 3684}, multiplesCandidates(614))
}

func TestLogFracCandidates(t *testing.T) {
	t.Parallel()
	got := logFracCandidates(1000)
	require.GreaterOrEqual(t, len(got), 6)
	assert.Equal(t, []uint64{1000, 666, 500, 333, 250, 166}, got[:6])
	for _, q := range got {
		assert.Positive(t, q)
	}
}

func TestHybridCandidates(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 7))
	got := hybridCandidates(1000, 9, rng)
	require.Len(t, got, 9)

	// Six log-spaced points from default/10 to default×1000, then three random ones.
	assert.Equal(t, uint64(100), got[0])
	assert.Equal(t, uint64(1_000_000), got[5])
	for i := 1; i < 6; i++ {
		assert.Greater(t, got[i], got[i-1])
	}
	for _, q := range got[6:] {
		assert.GreaterOrEqual(t, q, uint64(100))
		assert.LessOrEqual(t, q, uint64(1_000_000))
	}
}

func TestSamplingBudget(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 75, samplingBudget(StrategyMultiples, 75))
	assert.Equal(t, 30, samplingBudget(StrategyLogFrac, 75))
	assert.Equal(t, 16, samplingBudget(StrategyHybrid, 40))
	assert.Equal(t, 1, samplingBudget(StrategyHybrid, 1))
}
