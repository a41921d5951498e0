package trigger

import (
	"math/big"
	"time"

	"github.com/ava-labs/backrunner/pkg/optimizer"
	"github.com/ava-labs/backrunner/pkg/snapshot"
	"github.com/ethereum/go-ethereum/common"
)

// TriggerConfig is one search configuration: what to watch and which
// quantity space to search when it fires. It is read-only after loading.
type TriggerConfig struct {
	ID string

	WatchedAddresses   []common.Address
	WatchedSelectors   [][4]byte
	WatchedStorageKeys []snapshot.StorageKey

	TargetContract common.Address
	DefaultValue   uint64
	LowerBound     uint64
	UpperBound     uint64

	// Optional search overrides. Zero values fall back to scheduler defaults.
	Strategy      optimizer.Strategy
	MaxIterations int
	Deadline      time.Duration
	MinProfit     *big.Int
}

// Empty reports whether the config watches nothing. Such a config never fires.
func (c TriggerConfig) Empty() bool {
	return len(c.WatchedAddresses) == 0 && len(c.WatchedSelectors) == 0 && len(c.WatchedStorageKeys) == 0
}

// Degenerate reports whether the search bounds are inverted.
func (c TriggerConfig) Degenerate() bool {
	return c.LowerBound > c.UpperBound
}
