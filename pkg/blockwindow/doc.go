// Package blockwindow accumulates partial-block updates into immutable state
// snapshots for the block currently being built.
//
// Terminology
//   - Window: the accumulated state of one block number. Exactly one window is
//     live at a time; observing a higher block number replaces it outright.
//   - Index: the per-block sequence index of an update. Updates of a block are
//     expected to arrive as 0, 1, 2, ...
//   - Gap: an update whose index skips ahead of last applied + 1. It is applied
//     anyway and the produced snapshot is marked gap-recovered.
//
// Main components
//   - Window: the live window position (block number, last applied index) and
//     its latest published snapshot. Readers may call Snapshot concurrently.
//   - Accumulator: the single sequential writer. Apply classifies an event
//     against the window, executes its transactions in order through an
//     engine.Executor and publishes the derived snapshot. Transactions that
//     revert or fail to simulate are kept in the transaction log (so their
//     calldata can still trigger searches) but contribute no state.
//   - StallWatchdog: warns when the window has not advanced for a while, which
//     usually means the update source is disconnected.
//
// Usage
//  1. Construct an Accumulator with NewAccumulator(logger, executor, handler, opts...).
//  2. Start Run(ctx, events) in a goroutine and feed it UpdateEvents.
//  3. The handler receives (previous, current) for every published snapshot.
//  4. Cancel ctx to stop Run.
package blockwindow
