// Package optimizer searches a single integer quantity for the value that
// maximizes a signed profit reported by the execution engine.
//
// A run has two phases. Phase 1 samples candidates with a configurable
// Strategy. If any sample is profitable, Phase 2 refines around the best one
// with a binary search that probes both neighbors of each midpoint. When the
// neighbors tie, two wider points a quarter of the interval away are probed;
// if one improves the best profit the interval is re-centered on it with that
// quarter width, otherwise the search stops.
//
// Every probe goes through a per-run cache, so a quantity is simulated at
// most once and only real simulations count against the iteration budget.
package optimizer
