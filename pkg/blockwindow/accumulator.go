package blockwindow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/backrunner/internal/engine"
	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ava-labs/backrunner/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

var (
	ErrStaleBlock     = errors.New("update for stale block")
	ErrEventsClosed   = errors.New("update event channel closed")
	errNilWindowState = errors.New("window has no snapshot to extend")
)

const defaultSenderCacheSize = 8192

// Handler receives every published snapshot together with the one it
// superseded. prev is nil for the first snapshot and belongs to an older block
// right after a reset. Handlers run on the accumulator goroutine and must not block.
type Handler func(ctx context.Context, prev, next *snapshot.Snapshot)

// Accumulator folds update events into the live window. It is a single
// sequential writer: Apply and Run must not be called concurrently.
type Accumulator struct {
	log     *zap.SugaredLogger
	exec    engine.Executor
	handler Handler
	window  *Window
	metrics *metrics.Metrics

	// Recovered senders by tx hash; updates are often redelivered after reconnects.
	senders *lru.Cache
}

// Option configures the Accumulator.
type Option func(*Accumulator)

// WithMetrics enables metrics collection for the accumulator.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Accumulator) {
		a.metrics = m
	}
}

// WithWindow makes the accumulator publish into w instead of a private window.
func WithWindow(w *Window) Option {
	return func(a *Accumulator) {
		a.window = w
	}
}

// NewAccumulator creates an Accumulator and returns an error if arguments are invalid.
func NewAccumulator(log *zap.SugaredLogger, exec engine.Executor, handler Handler, opts ...Option) (*Accumulator, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if exec == nil {
		return nil, errors.New("invalid executor: must not be nil")
	}
	if handler == nil {
		return nil, errors.New("invalid handler: must not be nil")
	}

	senders, err := lru.New(defaultSenderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create sender cache: %w", err)
	}

	a := &Accumulator{
		log:     log,
		exec:    exec,
		handler: handler,
		window:  NewWindow(),
		senders: senders,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Window returns the window the accumulator publishes into.
func (a *Accumulator) Window() *Window {
	return a.window
}

// Run applies events in arrival order until ctx is done or events is closed.
// Sequencing faults and stale updates are logged and skipped; they never stop the loop.
func (a *Accumulator) Run(ctx context.Context, events <-chan types.UpdateEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrEventsClosed
			}
			prev := a.window.Snapshot()
			next, _, err := a.Apply(ctx, ev)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, ErrStaleBlock) {
					a.metrics.IncError(metrics.ErrTypeStaleBlock)
					a.log.Warnw("dropping stale update", "error", err)
					continue
				}
				a.log.Errorw("failed to apply update",
					"blockNumber", ev.BlockNumber,
					"index", ev.Index,
					"error", err,
				)
				continue
			}
			if next != nil {
				a.handler(ctx, prev, next)
			}
		}
	}
}

// Apply folds ev into the window and returns the published snapshot.
// Duplicates return a nil snapshot and no error. Updates for an older block
// return ErrStaleBlock. Transaction failures are not errors.
func (a *Accumulator) Apply(ctx context.Context, ev types.UpdateEvent) (*snapshot.Snapshot, Outcome, error) {
	start := time.Now()
	outcome := a.window.Classify(ev.BlockNumber, ev.Index)
	defer func() {
		a.metrics.RecordUpdate(outcome.String(), time.Since(start).Seconds())
	}()

	var base *snapshot.Snapshot
	switch outcome {
	case Stale:
		block, _, _ := a.window.Position()
		return nil, outcome, fmt.Errorf("%w: got block %d, window at %d", ErrStaleBlock, ev.BlockNumber, block)
	case Duplicate:
		a.log.Debugw("discarding duplicate update", "blockNumber", ev.BlockNumber, "index", ev.Index)
		return nil, outcome, nil
	case NewBlock:
		base = snapshot.Empty(ev.BlockNumber)
	case NewBlockGap:
		a.log.Warnw("first update of new block is not index 0, using it as baseline",
			"blockNumber", ev.BlockNumber,
			"index", ev.Index,
		)
		base = snapshot.Empty(ev.BlockNumber)
	case Gap:
		_, last, _ := a.window.Position()
		a.log.Warnw("sequence gap, applying best effort",
			"blockNumber", ev.BlockNumber,
			"index", ev.Index,
			"lastApplied", last,
		)
		base = a.window.Snapshot()
	case Applied:
		base = a.window.Snapshot()
	}
	if base == nil {
		return nil, outcome, errNilWindowState
	}

	gap := outcome == Gap || outcome == NewBlockGap
	next, err := a.execute(ctx, base, ev, gap)
	if err != nil {
		return nil, outcome, err
	}
	if err := a.window.Publish(ev.BlockNumber, ev.Index, next); err != nil {
		return nil, outcome, err
	}
	a.metrics.UpdateWindowMetrics(ev.BlockNumber, ev.Index, next.NumAccounts(), len(next.Transactions()))
	return next, outcome, nil
}

// execute runs the event's transactions in order on top of base. Only
// successful transactions contribute state; every decodable transaction is logged.
func (a *Accumulator) execute(
	ctx context.Context,
	base *snapshot.Snapshot,
	ev types.UpdateEvent,
	gap bool,
) (*snapshot.Snapshot, error) {
	working := base
	applied := make([]snapshot.AppliedTx, 0, len(ev.Transactions))
	var ok, failed, undecodable int

	for i, raw := range ev.Transactions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tx := new(ethtypes.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			undecodable++
			a.log.Debugw("skipping undecodable transaction",
				"blockNumber", ev.BlockNumber,
				"index", ev.Index,
				"position", i,
				"error", err,
			)
			continue
		}
		from, err := a.sender(tx)
		if err != nil {
			undecodable++
			a.log.Debugw("skipping transaction with unrecoverable sender", "tx", tx.Hash(), "error", err)
			continue
		}

		atx := snapshot.AppliedTx{Tx: tx, From: from}
		res, err := a.exec.ExecuteTx(ctx, working, tx, from)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			atx.Failed = true
			failed++
			a.log.Debugw("transaction simulation failed", "tx", tx.Hash(), "error", err)
		case res.Reverted:
			atx.Failed = true
			failed++
		default:
			working = working.Derive(res.Diff, nil, working.Index(), false)
			ok++
		}
		applied = append(applied, atx)
	}

	a.metrics.AddTransactions(metrics.TxOK, ok)
	a.metrics.AddTransactions(metrics.TxFailed, failed)
	a.metrics.AddTransactions(metrics.TxUndecodable, undecodable)

	return working.Derive(balanceDiff(ev), applied, ev.Index, gap), nil
}

func (a *Accumulator) sender(tx *ethtypes.Transaction) (common.Address, error) {
	hash := tx.Hash()
	if v, ok := a.senders.Get(hash); ok {
		return v.(common.Address), nil
	}
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover sender for tx %s: %w", hash.Hex(), err)
	}
	a.senders.Add(hash, from)
	return from, nil
}

func balanceDiff(ev types.UpdateEvent) snapshot.StateDiff {
	if len(ev.NewAccountBalances) == 0 {
		return nil
	}
	diff := make(snapshot.StateDiff, len(ev.NewAccountBalances))
	for addr, bal := range ev.NewAccountBalances {
		if bal == nil {
			continue
		}
		diff[addr] = snapshot.AccountDiff{Balance: bal}
	}
	return diff
}
