// Package trigger decides which search configurations react to a change in the
// block window.
//
// Route compares two snapshots and returns every TriggerConfig whose watch set
// intersects the delta: changed accounts, changed storage slots, and the
// senders, recipients and selectors of newly appended transactions.
// Configurations are loaded from YAML with LoadConfigs.
package trigger
