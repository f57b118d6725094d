package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"listing_enricher/internal/storage"
)

// UsageTable is the counter table used by StoreCounters
const UsageTable = "usage"

// DefaultCounterTTL keeps a day's counter around long enough to be reported
// the next day, whatever the configured time zone
const DefaultCounterTTL = 72 * time.Hour

// Counters is an atomic integer counter per key
type Counters interface {
	// Get returns the current value, 0 when the key was never incremented
	Get(ctx context.Context, key string) (int64, error)

	// Increment adds one and returns the new value
	Increment(ctx context.Context, key string) (int64, error)
}

// incrScript increments and arms the expiry on first use in one round trip
var incrScript = redis.NewScript(`
	local key = KEYS[1]
	local ttl = tonumber(ARGV[1])

	local value = redis.call('INCR', key)
	if value == 1 then
		redis.call('EXPIRE', key, ttl)
	end
	return value
`)

// RedisCounters keeps counters in Redis. Increments are atomic across
// processes.
type RedisCounters struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCounters creates Redis-backed counters. ttl <= 0 uses DefaultCounterTTL.
func NewRedisCounters(client *redis.Client, ttl time.Duration) *RedisCounters {
	if ttl <= 0 {
		ttl = DefaultCounterTTL
	}
	return &RedisCounters{client: client, ttl: ttl}
}

func (c *RedisCounters) Get(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return val, nil
}

func (c *RedisCounters) Increment(ctx context.Context, key string) (int64, error) {
	val, err := incrScript.Run(ctx, c.client, []string{key}, int(c.ttl.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage counter: %w", err)
	}
	return val, nil
}

// StoreCounters keeps counters in the record store's counter table
type StoreCounters struct {
	store storage.CounterStore
}

// NewStoreCounters creates counters backed by store
func NewStoreCounters(store storage.CounterStore) *StoreCounters {
	return &StoreCounters{store: store}
}

func (c *StoreCounters) Get(ctx context.Context, key string) (int64, error) {
	return c.store.Count(ctx, UsageTable, key)
}

func (c *StoreCounters) Increment(ctx context.Context, key string) (int64, error) {
	return c.store.Increment(ctx, UsageTable, key, 1)
}
