package trigger

import (
	"fmt"
	"slices"
)

// Built-in selector sets that configs can reference by name.
var selectorSets = map[string][][4]byte{
	// Chainlink aggregator updates.
	"oracle": {
		{0x50, 0xd2, 0x5b, 0xcd}, // latestAnswer()
		{0x9a, 0x6f, 0xc8, 0xf5}, // transmit(...)
		{0xc9, 0x80, 0x75, 0x39}, // submit(...)
		{0x6f, 0xad, 0xcf, 0x72}, // forward(...)
	},
	// Uniswap style swaps and routers.
	"dex": {
		{0x02, 0x2c, 0x0d, 0x9f}, // swap (v2 pair)
		{0x12, 0x8a, 0xca, 0xb4}, // swap (v3 pool)
		{0xac, 0x96, 0x50, 0xd8}, // multicall
		{0x38, 0xed, 0x17, 0x39}, // swapExactTokensForTokens
		{0x7f, 0xf3, 0x6a, 0xb5}, // swapExactETHForTokens
		{0x18, 0xcb, 0xaf, 0xe5}, // swapExactTokensForETH
		{0x04, 0xe4, 0x5a, 0xaf}, // exactInputSingle
		{0x41, 0x4b, 0xf3, 0x89}, // exactInput
	},
}

// SelectorSet returns a copy of the named built-in selector set.
func SelectorSet(name string) ([][4]byte, error) {
	set, ok := selectorSets[name]
	if !ok {
		return nil, fmt.Errorf("unknown selector set %q", name)
	}
	return slices.Clone(set), nil
}
