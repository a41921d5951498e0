// Package scheduler runs one time-boxed quantity search per triggered config.
//
// Dispatch never blocks the caller. Each task gets its own absolute deadline,
// reads the shared snapshot without modifying it, and hands its result to the
// recorder and, when profitable, to the submission sink as soon as it
// finishes. A failing or panicking task never affects its siblings.
package scheduler
