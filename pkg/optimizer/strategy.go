package optimizer

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Strategy selects how Phase 1 picks its initial samples.
type Strategy string

const (
	// StrategyMultiples probes default × {1, 1/2, 1/4, 1/6, 2, 4, 6}.
	StrategyMultiples Strategy = "multiples"
	// StrategyLogFrac probes default/2^i and default/(1.5·2^i) for increasing i.
	StrategyLogFrac Strategy = "logfrac"
	// StrategyHybrid spends two thirds of the sampling budget on log-spaced
	// points in [default/10, default×1000] and the rest on uniform random points.
	StrategyHybrid Strategy = "hybrid"
)

// DefaultStrategy is used when a config does not name one.
const DefaultStrategy = StrategyMultiples

// ParseStrategy validates a strategy name. The empty string is accepted and
// means the caller's default.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case "", StrategyMultiples, StrategyLogFrac, StrategyHybrid:
		return st, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// samplingBudget is the number of real probes Phase 1 may spend.
func samplingBudget(st Strategy, maxIterations int) int {
	if st == StrategyMultiples {
		return maxIterations
	}
	return max(1, int(math.Ceil(float64(maxIterations)*sampleShare)))
}

const (
	sampleShare      = 0.4
	hybridLowDivisor = 10
	hybridHighFactor = 1000
	maxHalvings      = 64
)

// candidates returns the Phase 1 sample sequence in probe order. Values are
// not clipped; the caller clips and stops once the budget is spent.
func candidates(st Strategy, def uint64, budget int, rng *rand.Rand) []uint64 {
	switch st {
	case StrategyLogFrac:
		return logFracCandidates(def)
	case StrategyHybrid:
		return hybridCandidates(def, budget, rng)
	default:
		return multiplesCandidates(def)
	}
}

func multiplesCandidates(def uint64) []uint64 {
	return []uint64{
		def,
		def / 2,
		def / 4,
		def / 6,
		satMul(def, 2),
		satMul(def, 4),
		satMul(def, 6),
	}
}

func logFracCandidates(def uint64) []uint64 {
	out := make([]uint64, 0, 2*maxHalvings)
	for i := 0; i < maxHalvings; i++ {
		div := uint64(1) << i
		q := def / div
		if q == 0 {
			break
		}
		out = append(out, q)
		if q15 := uint64(math.Floor(float64(def) / (1.5 * float64(div)))); q15 > 0 {
			out = append(out, q15)
		}
	}
	return out
}

func hybridCandidates(def uint64, budget int, rng *rand.Rand) []uint64 {
	lo := max(def/hybridLowDivisor, 1)
	hi := max(satMul(def, hybridHighFactor), lo)

	nLog := budget * 2 / 3
	nRand := budget - nLog
	out := make([]uint64, 0, budget)

	if nLog == 1 {
		out = append(out, lo)
	} else if nLog > 1 {
		ratio := float64(hi) / float64(lo)
		for k := 0; k < nLog; k++ {
			f := float64(lo) * math.Pow(ratio, float64(k)/float64(nLog-1))
			out = append(out, floatToQuantity(f))
		}
	}
	for k := 0; k < nRand; k++ {
		out = append(out, lo+rng.Uint64N(hi-lo+1))
	}
	return out
}

func floatToQuantity(f float64) uint64 {
	if f >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(math.Round(f))
}

func satMul(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
