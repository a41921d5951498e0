package optimizer

import (
	"context"
	"errors"
	"math/big"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxIterations caps real probes when Params.MaxIterations is unset.
	DefaultMaxIterations = 40
	// DefaultRefineFraction sets the Phase 2 radius relative to the bounds.
	DefaultRefineFraction = 0.1
)

// Params describes one search.
type Params struct {
	LowerBound   uint64
	UpperBound   uint64
	DefaultValue uint64

	Strategy      Strategy
	MaxIterations int
	// GasLimit caps cumulative simulated gas. 0 means unlimited.
	GasLimit uint64
	// RefineFraction is the Phase 2 radius as a fraction of the bounds width
	// or of the best quantity, whichever is larger. 0 means DefaultRefineFraction.
	RefineFraction float64
	// Seed drives the hybrid strategy's random samples. 0 picks a fresh seed.
	Seed uint64
}

// Result is the outcome of a search.
type Result struct {
	BestQuantity   uint64
	BestProfit     *big.Int
	TestsPerformed int
	GasUsed        uint64
	// TimedOut is set when the context ended the search early.
	TimedOut bool
	Duration time.Duration
}

// Optimizer runs quantity searches. It holds no per-search state and is safe
// for concurrent use.
type Optimizer struct {
	log *zap.SugaredLogger
}

// New creates an Optimizer.
func New(log *zap.SugaredLogger) (*Optimizer, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	return &Optimizer{log: log}, nil
}

// run is the mutable state of one search.
type run struct {
	ctx    context.Context
	prober Prober

	lower, upper  uint64
	maxIterations int
	gasLimit      uint64

	cache    map[uint64]*big.Int
	tests    int
	gasUsed  uint64
	timedOut bool

	bestQ      uint64
	bestProfit *big.Int
}

// Optimize searches [LowerBound, UpperBound] for the quantity with the highest
// profit. It never returns an error: probe failures count as zero profit and
// an expired context yields the best result found so far.
func (o *Optimizer) Optimize(ctx context.Context, prober Prober, params Params) Result {
	start := time.Now()
	params = withDefaults(params)

	r := &run{
		ctx:           ctx,
		prober:        prober,
		lower:         params.LowerBound,
		upper:         min(params.UpperBound, MaxQuantity),
		maxIterations: params.MaxIterations,
		gasLimit:      params.GasLimit,
		cache:         make(map[uint64]*big.Int),
		bestQ:         params.LowerBound,
		bestProfit:    new(big.Int),
	}
	if r.lower > r.upper {
		o.log.Debugw("degenerate search bounds",
			"lower", params.LowerBound,
			"upper", params.UpperBound,
		)
		return Result{BestQuantity: params.LowerBound, BestProfit: new(big.Int), Duration: time.Since(start)}
	}

	o.sample(r, params)
	if r.bestProfit.Sign() > 0 {
		o.refine(r, params.RefineFraction)
	}

	if ctx.Err() != nil {
		r.timedOut = true
	}
	res := r.result(params.LowerBound)
	res.Duration = time.Since(start)
	o.log.Debugw("search finished",
		"bestQuantity", res.BestQuantity,
		"bestProfit", res.BestProfit,
		"tests", res.TestsPerformed,
		"gasUsed", res.GasUsed,
		"timedOut", res.TimedOut,
		"duration", res.Duration,
	)
	return res
}

func withDefaults(p Params) Params {
	if p.Strategy == "" {
		p.Strategy = DefaultStrategy
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	if p.RefineFraction <= 0 {
		p.RefineFraction = DefaultRefineFraction
	}
	return p
}

// sample is Phase 1.
func (o *Optimizer) sample(r *run, p Params) {
	budget := min(samplingBudget(p.Strategy, r.maxIterations), r.maxIterations)
	seed := p.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, ^seed))

	def := r.clip(p.DefaultValue)
	for _, q := range candidates(p.Strategy, def, budget, rng) {
		if r.tests >= budget {
			return
		}
		if _, ok := r.probe(q); !ok {
			return
		}
	}
}

// refine is Phase 2.
func (o *Optimizer) refine(r *run, fraction float64) {
	radius := uint64(fraction * float64(r.upper-r.lower))
	if byBest := uint64(fraction * float64(r.bestQ)); byBest > radius {
		radius = byBest
	}
	left := max(satSub(r.bestQ, radius), r.lower)
	right := min(satAdd(r.bestQ, radius), r.upper)

	// Every round either shrinks the interval or follows a strict improvement,
	// so this only guards against budget accounting mistakes.
	maxRounds := 4*r.maxIterations + 64
	for round := 0; round < maxRounds && left < right && !r.exhausted(); round++ {
		mid := left + (right-left)/2
		midProfit, ok := r.probe(mid)
		if !ok {
			return
		}

		lv, rv := midProfit, midProfit
		if mid > r.lower {
			if v, ok := r.probe(mid - 1); ok {
				lv = v
			}
		}
		if mid < r.upper {
			if v, ok := r.probe(mid + 1); ok {
				rv = v
			}
		}

		switch lv.Cmp(rv) {
		case 1:
			if mid == left {
				return
			}
			right = mid - 1
		case -1:
			left = mid + 1
		default:
			w := (right - left) / 4
			if w == 0 {
				return
			}
			before := new(big.Int).Set(r.bestProfit)
			r.probe(satSub(mid, w))
			r.probe(satAdd(mid, w))
			if r.bestProfit.Cmp(before) <= 0 {
				return
			}
			o.log.Debugw("plateau escaped",
				"from", mid,
				"to", r.bestQ,
				"width", w,
			)
			left = max(satSub(r.bestQ, w), r.lower)
			right = min(satAdd(r.bestQ, w), r.upper)
		}
	}
}

func (r *run) clip(q uint64) uint64 {
	return min(max(q, r.lower), r.upper)
}

func (r *run) exhausted() bool {
	if r.ctx.Err() != nil {
		r.timedOut = true
		return true
	}
	if r.tests >= r.maxIterations {
		return true
	}
	return r.gasLimit > 0 && r.gasUsed >= r.gasLimit
}

// probe returns the profit at clip(q). Cached quantities are answered without
// a simulation. ok is false when the budget is spent or the context is done.
func (r *run) probe(q uint64) (*big.Int, bool) {
	q = r.clip(q)
	if v, hit := r.cache[q]; hit {
		return v, true
	}
	if r.exhausted() {
		return nil, false
	}

	res := r.prober.Probe(r.ctx, q)
	profit := res.Profit
	if profit == nil {
		profit = new(big.Int)
	}
	r.tests++
	r.gasUsed = satAdd(r.gasUsed, res.GasUsed)
	r.cache[q] = profit

	if profit.Cmp(r.bestProfit) > 0 {
		r.bestQ = q
		r.bestProfit = profit
	}
	return profit, true
}

func (r *run) result(lowerBound uint64) Result {
	res := Result{
		BestQuantity:   r.bestQ,
		BestProfit:     new(big.Int).Set(r.bestProfit),
		TestsPerformed: r.tests,
		GasUsed:        r.gasUsed,
		TimedOut:       r.timedOut,
	}
	if res.BestProfit.Sign() <= 0 {
		res.BestQuantity = lowerBound
		res.BestProfit = new(big.Int)
	}
	return res
}
