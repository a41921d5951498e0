// Package snapshot implements the immutable, versioned execution state of the
// block currently being built.
//
// A Snapshot holds every account, storage slot and transaction accumulated for
// one block window. Snapshots are never mutated after construction: Derive
// returns a new version that shares unchanged accounts with its parent, so a
// snapshot can be handed to any number of concurrent readers by reference.
//
// Terminology
//   - Window: all partial updates observed for a single block number.
//   - Index: the sequence index of the last update folded into the snapshot.
//   - Gap-recovered: the snapshot was produced after a skipped sequence index and
//     may be missing transactions.
//
// Delta computes what changed between two versions (accounts, storage keys and
// appended transactions). Overrides renders a snapshot as an RPC state override
// set, which is how simulations see "latest finalized state + window".
package snapshot
