// Package submission delivers finished search results to downstream
// consumers. Sinks are independent of one another: a failing sink never
// prevents delivery to the others when combined with Fanout.
package submission
