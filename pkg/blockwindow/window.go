package blockwindow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ava-labs/backrunner/pkg/snapshot"
)

// Outcome classifies an update event against the live window.
type Outcome int

const (
	// Applied: next index of the live block.
	Applied Outcome = iota
	// Duplicate: index already applied, discarded.
	Duplicate
	// Gap: index skipped ahead, applied best effort.
	Gap
	// NewBlock: first update of a newer block at index 0.
	NewBlock
	// NewBlockGap: first update of a newer block at an index above 0.
	NewBlockGap
	// Stale: update for an older block, rejected.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	case NewBlock:
		return "new_block"
	case NewBlockGap:
		return "new_block_gap"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Window is the position and latest snapshot of the live block window.
// All methods are safe for concurrent use; only the accumulator mutates it.
type Window struct {
	mu           sync.RWMutex
	started      bool
	blockNumber  uint64
	lastApplied  uint64
	snap         *snapshot.Snapshot
	lastProgress time.Time
}

// NewWindow creates an empty window. The first event always opens a new block.
func NewWindow() *Window {
	return &Window{lastProgress: time.Now()}
}

// Classify returns how an event at (blockNumber, index) relates to the window.
func (w *Window) Classify(blockNumber, index uint64) Outcome {
	w.mu.RLock()
	defer w.mu.RUnlock()

	switch {
	case !w.started || blockNumber > w.blockNumber:
		if index == 0 {
			return NewBlock
		}
		return NewBlockGap
	case blockNumber < w.blockNumber:
		return Stale
	case index <= w.lastApplied:
		return Duplicate
	case index == w.lastApplied+1:
		return Applied
	default:
		return Gap
	}
}

// Publish moves the window to (blockNumber, index) and makes snap the latest snapshot.
// The block number must not go backwards.
func (w *Window) Publish(blockNumber, index uint64, snap *snapshot.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started && blockNumber < w.blockNumber {
		return fmt.Errorf(
			"invalid window update: block number moved backwards: %d < %d",
			blockNumber,
			w.blockNumber,
		)
	}
	w.started = true
	w.blockNumber = blockNumber
	w.lastApplied = index
	w.snap = snap
	w.lastProgress = time.Now()
	return nil
}

// Snapshot returns the latest published snapshot, or nil before the first update.
func (w *Window) Snapshot() *snapshot.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

// Position returns the live block number and last applied index.
// ok is false before the first update.
func (w *Window) Position() (blockNumber, lastApplied uint64, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.blockNumber, w.lastApplied, w.started
}

// SinceProgress returns the time since the window last advanced.
func (w *Window) SinceProgress() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return time.Since(w.lastProgress)
}

// Ready returns an error while no update has been applied or the window has
// not advanced within maxStall.
func (w *Window) Ready(maxStall time.Duration) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.started {
		return errors.New("no updates applied yet")
	}
	if stalled := time.Since(w.lastProgress); stalled > maxStall {
		return fmt.Errorf("window stalled for %s at block %d", stalled.Round(time.Millisecond), w.blockNumber)
	}
	return nil
}
