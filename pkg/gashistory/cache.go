package gashistory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	DefaultNamespace = "mev:gas"
	DefaultTTL       = time.Hour
	DefaultAlpha     = 0.05

	lockStripes = 64
)

// Cache is the adaptive bound cache: one filtered gas value per target contract.
// Reads and writes of the same target are serialized within the process.
type Cache struct {
	log       *zap.SugaredLogger
	store     Store
	namespace string
	ttl       time.Duration
	alpha     float64
	metrics   *metrics.Metrics

	locks [lockStripes]sync.Mutex
}

// Option configures the Cache.
type Option func(*Cache)

// WithMetrics enables metrics collection for the cache.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithNamespace sets the key prefix.
func WithNamespace(ns string) Option {
	return func(c *Cache) {
		c.namespace = ns
	}
}

// WithTTL sets how long an entry lives after its last update.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithAlpha sets the weight of a new observation.
func WithAlpha(alpha float64) Option {
	return func(c *Cache) {
		c.alpha = alpha
	}
}

// NewCache creates a Cache over store.
func NewCache(log *zap.SugaredLogger, store Store, opts ...Option) (*Cache, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if store == nil {
		return nil, errors.New("invalid store: must not be nil")
	}
	c := &Cache{
		log:       log,
		store:     store,
		namespace: DefaultNamespace,
		ttl:       DefaultTTL,
		alpha:     DefaultAlpha,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.alpha <= 0 || c.alpha > 1 {
		return nil, fmt.Errorf("invalid alpha %v: must be in (0, 1]", c.alpha)
	}
	if c.ttl <= 0 {
		return nil, fmt.Errorf("invalid ttl %v: must be positive", c.ttl)
	}
	return c, nil
}

// Key returns the store key for target.
func (c *Cache) Key(target common.Address) string {
	return c.namespace + ":" + strings.ToLower(target.Hex())
}

// Get returns the filtered gas for target. Backend failures are logged and
// reported as no history.
func (c *Cache) Get(ctx context.Context, target common.Address) (uint64, bool) {
	v, ok, err := c.store.Get(ctx, c.Key(target))
	switch {
	case err != nil:
		c.metrics.RecordGasLookup(metrics.LookupError)
		c.log.Warnw("failed to read gas history", "target", target, "error", err)
		return 0, false
	case !ok:
		c.metrics.RecordGasLookup(metrics.LookupMiss)
		return 0, false
	default:
		c.metrics.RecordGasLookup(metrics.LookupHit)
		return v, true
	}
}

// Update folds observed into the filtered value for target and refreshes its TTL.
// A zero observation is ignored. Failures are logged and counted before being
// returned; callers may discard the error.
func (c *Cache) Update(ctx context.Context, target common.Address, observed uint64) (uint64, error) {
	if observed == 0 {
		return 0, nil
	}
	key := c.Key(target)
	mu := c.lock(key)
	mu.Lock()
	defer mu.Unlock()

	prev, ok, err := c.store.Get(ctx, key)
	if err != nil {
		// Start over from the observation rather than skip the write.
		c.log.Debugw("gas history read failed during update", "target", target, "error", err)
		ok = false
	}
	filtered := Filter(prev, ok, observed, c.alpha)

	err = c.store.Set(ctx, key, filtered, c.ttl)
	c.metrics.RecordGasUpdate(err)
	if err != nil {
		c.metrics.IncError(metrics.ErrTypeCacheUpdate)
		c.log.Warnw("failed to update gas history", "target", target, "observed", observed, "error", err)
		return 0, err
	}
	c.log.Debugw("gas history updated",
		"target", target,
		"observed", observed,
		"filtered", filtered,
	)
	return filtered, nil
}

func (c *Cache) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.locks[h.Sum32()%lockStripes]
}

// Filter applies one IIR step: observed·α + prev·(1−α), rounded.
// Without a previous value the observation is taken as is. When rounding
// would leave prev unchanged the value moves one unit toward observed, so
// repeated observations are reached exactly.
func Filter(prev uint64, ok bool, observed uint64, alpha float64) uint64 {
	if !ok {
		return observed
	}
	next := uint64(math.Round(float64(observed)*alpha + float64(prev)*(1-alpha)))
	switch {
	case next != prev:
		return next
	case prev < observed:
		return prev + 1
	case prev > observed:
		return prev - 1
	default:
		return prev
	}
}
