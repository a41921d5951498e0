// Package gashistory keeps a smoothed record of how much gas searches against
// each target contract consume, and scales search budgets from it.
//
// Observations are folded in with a first order IIR filter and stored with a
// TTL that is refreshed on every update, so targets that stop firing fall back
// to default budgets. Redis and in-memory backends are provided.
package gashistory
