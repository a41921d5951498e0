// Package source streams partial-block updates from a flashblocks websocket
// endpoint and turns them into types.UpdateEvent values for the window
// accumulator.
package source
