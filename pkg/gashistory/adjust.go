package gashistory

import "math"

// DefaultTargetGas is the filtered gas a search is expected to stay around.
const DefaultTargetGas = 35_000_000

// Budget is the part of a search that scales with gas history.
type Budget struct {
	MaxIterations int
	// GasLimit 0 means unlimited and is left as is.
	GasLimit     uint64
	LowerBound   uint64
	UpperBound   uint64
	DefaultValue uint64
}

// Factor returns the budget scale for a filtered gas value against targetGas.
func Factor(filtered, targetGas uint64) float64 {
	switch {
	case filtered > 2*targetGas:
		return 0.5
	case filtered > targetGas:
		return 0.8
	case filtered < targetGas/2:
		return 1.5
	default:
		return 1.0
	}
}

// Adjust scales b from the filtered gas of its target. Without history b is
// returned unchanged with factor 1.
//
// The upper bound only shrinks: a factor above 1 grows the iteration and gas
// allowance but keeps the configured bounds. A shrunk upper bound never drops
// below the lower bound.
func Adjust(b Budget, filtered uint64, ok bool, targetGas uint64) (Budget, float64) {
	if !ok {
		return b, 1.0
	}
	if targetGas == 0 {
		targetGas = DefaultTargetGas
	}
	f := Factor(filtered, targetGas)
	if f == 1.0 {
		return b, f
	}

	out := b
	out.MaxIterations = max(1, int(math.Round(float64(b.MaxIterations)*f)))
	if b.GasLimit > 0 {
		out.GasLimit = max(1, scale(b.GasLimit, f))
	}
	if f < 1 {
		out.UpperBound = max(min(scale(b.UpperBound, f), b.UpperBound), b.LowerBound)
	}
	return out, f
}

func scale(v uint64, f float64) uint64 {
	s := float64(v) * f
	if s >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(s)
}
