package gashistory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// Store is a TTL-capable key value backend for filtered gas values.
type Store interface {
	// Get returns the stored value. ok is false when the key is missing or expired.
	Get(ctx context.Context, key string) (value uint64, ok bool, err error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value uint64, ttl time.Duration) error
}

// RedisStore keeps values as decimal strings in Redis.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore on top of an existing client.
func NewRedisStore(client redis.Cmdable) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("invalid redis client: must not be nil")
	}
	return &RedisStore{client: client}, nil
}

// Get reads key. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (uint64, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s value %q: %w", key, raw, err)
	}
	return v, true, nil
}

// Set writes key with SET ... EX ttl.
func (s *RedisStore) Set(ctx context.Context, key string, value uint64, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, strconv.FormatUint(value, 10), ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// MemoryStore is a process local Store for single instance deployments and tests.
type MemoryStore struct {
	cache *ttlcache.Cache[string, uint64]
}

// NewMemoryStore creates a MemoryStore and starts its expiry loop. Call Close to stop it.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New[string, uint64](
		ttlcache.WithDisableTouchOnHit[string, uint64](),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

// Get returns the value for key if it has not expired.
func (s *MemoryStore) Get(_ context.Context, key string) (uint64, bool, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return 0, false, nil
	}
	return item.Value(), true, nil
}

// Set stores value for ttl.
func (s *MemoryStore) Set(_ context.Context, key string, value uint64, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

// Close stops the expiry loop.
func (s *MemoryStore) Close() {
	s.cache.Stop()
}
