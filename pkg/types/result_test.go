package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchResult_Profitable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		profit *big.Int
		want   bool
	}{
		{name: "nil profit", profit: nil, want: false},
		{name: "zero", profit: big.NewInt(0), want: false},
		{name: "negative", profit: big.NewInt(-5), want: false},
		{name: "positive", profit: big.NewInt(500), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &SearchResult{BestProfit: tt.profit}
			assert.Equal(t, tt.want, r.Profitable())
		})
	}
}

func TestSearchResult_MarshalProfitAsNumber(t *testing.T) {
	t.Parallel()

	r := &SearchResult{ConfigID: "weth-usdc", BestQuantity: 614, BestProfit: big.NewInt(-42), Calldata: []byte{0, 0, 2, 0x66}}
	data, err := r.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bestProfit":-42`)
	assert.Contains(t, string(data), `"calldata":"0x00000266"`)

	var got SearchResult
	require.NoError(t, got.Unmarshal(data))
	assert.Equal(t, 0, got.BestProfit.Cmp(big.NewInt(-42)))
	assert.Equal(t, uint64(614), got.BestQuantity)
}
