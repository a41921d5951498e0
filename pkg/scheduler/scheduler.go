package scheduler

import (
	"context"
	"errors"
	"math/big"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ava-labs/backrunner/internal/engine"
	"github.com/ava-labs/backrunner/pkg/gashistory"
	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ava-labs/backrunner/pkg/optimizer"
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ava-labs/backrunner/pkg/trigger"
	"github.com/ava-labs/backrunner/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultDeadline = 20 * time.Second
	DefaultGasLimit = 1_000_000_000

	handoffTimeout   = 5 * time.Second
	gasUpdateTimeout = 2 * time.Second
	maxRetries       = 3
	backoff          = 300 * time.Millisecond
)

// Sink receives results worth submitting.
type Sink interface {
	Submit(ctx context.Context, res *types.SearchResult) error
}

// Recorder persists every result, profitable or not.
type Recorder interface {
	Write(ctx context.Context, res *types.SearchResult) error
}

// GasHistory is the adaptive bound cache consulted before and updated after each search.
type GasHistory interface {
	Get(ctx context.Context, target common.Address) (uint64, bool)
	Update(ctx context.Context, target common.Address, observed uint64) (uint64, error)
}

// Searcher runs one quantity search.
type Searcher interface {
	Optimize(ctx context.Context, p optimizer.Prober, params optimizer.Params) optimizer.Result
}

// ProberFactory builds the prober for one task.
type ProberFactory func(snap *snapshot.Snapshot, target common.Address) (optimizer.Prober, error)

// Config holds scheduler wide defaults. Per trigger settings override them.
type Config struct {
	// Deadline is the time budget of one task.
	Deadline time.Duration
	// MaxConcurrency caps running tasks. 0 means unbounded.
	MaxConcurrency int
	MaxIterations  int
	// GasLimit caps cumulative probe gas per task before gas history scaling. 0 means unlimited.
	GasLimit       uint64
	TargetGas      uint64
	Strategy       optimizer.Strategy
	RefineFraction float64
	// ProbeGas is the gas limit of one probe call.
	ProbeGas uint64
	// SkipGapRecovered drops snapshots that were built across a sequence gap.
	SkipGapRecovered bool
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = optimizer.DefaultMaxIterations
	}
	if c.TargetGas == 0 {
		c.TargetGas = gashistory.DefaultTargetGas
	}
	if c.Strategy == "" {
		c.Strategy = optimizer.DefaultStrategy
	}
	return c
}

// Scheduler dispatches search tasks.
type Scheduler struct {
	log       *zap.SugaredLogger
	cfg       Config
	searcher  Searcher
	newProber ProberFactory
	gas       GasHistory
	sink      Sink
	recorder  Recorder
	metrics   *metrics.Metrics

	// nil when concurrency is unbounded.
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithMetrics enables metrics collection for the scheduler.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithGasHistory enables budget scaling from gas history.
func WithGasHistory(g GasHistory) Option {
	return func(s *Scheduler) {
		s.gas = g
	}
}

// WithSink sets where profitable results are submitted.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// WithRecorder sets where every result is persisted.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithSearcher replaces the default optimizer.
func WithSearcher(searcher Searcher) Option {
	return func(s *Scheduler) {
		s.searcher = searcher
	}
}

// WithProberFactory replaces the default engine backed prober.
func WithProberFactory(f ProberFactory) Option {
	return func(s *Scheduler) {
		s.newProber = f
	}
}

// New creates a Scheduler and returns an error if arguments are invalid.
func New(log *zap.SugaredLogger, cfg Config, exec engine.Executor, opts ...Option) (*Scheduler, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if exec == nil {
		return nil, errors.New("invalid executor: must not be nil")
	}
	if cfg.MaxConcurrency < 0 {
		return nil, errors.New("invalid max concurrency: must not be negative")
	}
	cfg = cfg.withDefaults()

	opt, err := optimizer.New(log)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		log:      log,
		cfg:      cfg,
		searcher: opt,
		newProber: func(snap *snapshot.Snapshot, target common.Address) (optimizer.Prober, error) {
			return optimizer.NewEngineProber(log, exec, snap, target, cfg.ProbeGas)
		},
	}
	for _, o := range opts {
		o(s)
	}
	if cfg.MaxConcurrency > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrency))
	}
	return s, nil
}

// Handler returns a snapshot handler that routes each change through configs
// and dispatches the matches. It fits blockwindow.Handler.
func (s *Scheduler) Handler(configs []trigger.TriggerConfig) func(ctx context.Context, prev, next *snapshot.Snapshot) {
	return func(ctx context.Context, prev, next *snapshot.Snapshot) {
		if s.cfg.SkipGapRecovered && next.GapRecovered() {
			s.log.Debugw("skipping gap recovered snapshot",
				"blockNumber", next.BlockNumber(),
				"index", next.Index(),
			)
			return
		}
		matched := trigger.Route(prev, next, configs)
		if len(matched) == 0 {
			return
		}
		s.Dispatch(ctx, next, matched)
	}
}

// Dispatch starts one task per config against snap and returns immediately.
// Tasks stop at their deadline or when ctx is done.
func (s *Scheduler) Dispatch(ctx context.Context, snap *snapshot.Snapshot, configs []trigger.TriggerConfig) {
	now := time.Now()
	for _, cfg := range configs {
		deadline := cfg.Deadline
		if deadline <= 0 {
			deadline = s.cfg.Deadline
		}
		s.metrics.IncTrigger(cfg.ID)
		s.wg.Add(1)
		go s.run(ctx, snap, cfg, now.Add(deadline))
	}
}

// Wait blocks until every dispatched task and its follow-up writes have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(parent context.Context, snap *snapshot.Snapshot, cfg trigger.TriggerConfig, deadline time.Time) {
	defer s.wg.Done()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordSearch(metrics.TaskPanic, time.Since(start).Seconds(), 0, 0, false)
			s.log.Errorw("search task panicked",
				"config", cfg.ID,
				"target", cfg.TargetContract,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	ctx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	res := s.limitedSearch(ctx, snap, cfg)

	result := &types.SearchResult{
		ID:             uuid.NewString(),
		ConfigID:       cfg.ID,
		TargetContract: cfg.TargetContract,
		BlockNumber:    snap.BlockNumber(),
		SnapshotIndex:  snap.Index(),
		GapRecovered:   snap.GapRecovered(),
		BestQuantity:   res.BestQuantity,
		BestProfit:     res.BestProfit,
		TestsPerformed: res.TestsPerformed,
		GasUsed:        res.GasUsed,
		Calldata:       optimizer.Calldata(res.BestQuantity),
		TimedOut:       res.TimedOut,
		Duration:       time.Since(start),
		CompletedAt:    time.Now().UTC(),
	}

	outcome := metrics.TaskCompleted
	if result.TimedOut {
		outcome = metrics.TaskTimeout
	}
	s.metrics.RecordSearch(outcome, result.Duration.Seconds(), result.TestsPerformed, result.GasUsed, result.Profitable())
	s.log.Infow("search finished",
		"id", result.ID,
		"config", cfg.ID,
		"target", cfg.TargetContract,
		"blockNumber", result.BlockNumber,
		"index", result.SnapshotIndex,
		"bestQuantity", result.BestQuantity,
		"bestProfit", result.BestProfit,
		"tests", result.TestsPerformed,
		"gasUsed", result.GasUsed,
		"timedOut", result.TimedOut,
		"duration", result.Duration,
	)

	// The task context may already be expired; hand-offs get their own time.
	detached := context.WithoutCancel(parent)
	if result.GasUsed > 0 && s.gas != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			uctx, cancel := context.WithTimeout(detached, gasUpdateTimeout)
			defer cancel()
			_, _ = s.gas.Update(uctx, cfg.TargetContract, result.GasUsed)
		}()
	}
	s.record(detached, result)
	if shouldSubmit(result, cfg.MinProfit) {
		s.submit(detached, result)
	}
}

// limitedSearch runs the search once a concurrency slot is free. A task whose
// deadline passes while waiting reports an empty timed out result.
func (s *Scheduler) limitedSearch(ctx context.Context, snap *snapshot.Snapshot, cfg trigger.TriggerConfig) optimizer.Result {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.log.Warnw("search task expired waiting for a slot", "config", cfg.ID, "error", err)
			return optimizer.Result{BestQuantity: cfg.LowerBound, BestProfit: new(big.Int), TimedOut: true}
		}
		defer s.sem.Release(1)
	}
	s.metrics.IncTasksInFlight()
	defer s.metrics.DecTasksInFlight()
	return s.search(ctx, snap, cfg)
}

func (s *Scheduler) search(ctx context.Context, snap *snapshot.Snapshot, cfg trigger.TriggerConfig) optimizer.Result {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = s.cfg.MaxIterations
	}
	budget := gashistory.Budget{
		MaxIterations: maxIterations,
		GasLimit:      s.cfg.GasLimit,
		LowerBound:    cfg.LowerBound,
		UpperBound:    cfg.UpperBound,
		DefaultValue:  cfg.DefaultValue,
	}
	if s.gas != nil && !cfg.Degenerate() {
		filtered, ok := s.gas.Get(ctx, cfg.TargetContract)
		var factor float64
		budget, factor = gashistory.Adjust(budget, filtered, ok, s.cfg.TargetGas)
		if ok && factor != 1.0 {
			s.log.Debugw("scaled search budget from gas history",
				"config", cfg.ID,
				"filteredGas", filtered,
				"factor", factor,
				"maxIterations", budget.MaxIterations,
				"upperBound", budget.UpperBound,
			)
		}
	}

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = s.cfg.Strategy
	}
	params := optimizer.Params{
		LowerBound:     budget.LowerBound,
		UpperBound:     budget.UpperBound,
		DefaultValue:   budget.DefaultValue,
		Strategy:       strategy,
		MaxIterations:  budget.MaxIterations,
		GasLimit:       budget.GasLimit,
		RefineFraction: s.cfg.RefineFraction,
	}

	prober, err := s.newProber(snap, cfg.TargetContract)
	if err != nil {
		s.log.Errorw("failed to create prober", "config", cfg.ID, "error", err)
		return optimizer.Result{BestQuantity: cfg.LowerBound, BestProfit: new(big.Int)}
	}
	return s.searcher.Optimize(ctx, prober, params)
}

func shouldSubmit(res *types.SearchResult, minProfit *big.Int) bool {
	if !res.Profitable() {
		return false
	}
	return minProfit == nil || res.BestProfit.Cmp(minProfit) > 0
}

// record writes res to the recorder, retrying a few times.
func (s *Scheduler) record(ctx context.Context, res *types.SearchResult) {
	if s.recorder == nil {
		return
	}
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, handoffTimeout)
		err = s.recorder.Write(wctx, res)
		cancel()
		if err == nil {
			return
		}
		if attempt < maxRetries {
			time.Sleep(backoff)
		}
	}
	s.metrics.IncError(metrics.ErrTypeRecorder)
	s.log.Warnw("failed to record search result", "id", res.ID, "config", res.ConfigID, "error", err)
}

func (s *Scheduler) submit(ctx context.Context, res *types.SearchResult) {
	if s.sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, handoffTimeout)
	defer cancel()
	if err := s.sink.Submit(sctx, res); err != nil {
		s.log.Warnw("failed to submit search result",
			"id", res.ID,
			"config", res.ConfigID,
			"error", err,
		)
	}
}
