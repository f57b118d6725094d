package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"listing_enricher/internal/storage"
)

// Window is the length of the sliding window limits are expressed in
const Window = time.Minute

// Limiter is used to enforce per-key, per-minute rate limits. A limit <= 0
// disables limiting for the call.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// NoopLimiter allows all requests
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	return true, nil
}

// RateLimiter implements distributed rate limiting using Redis
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

func redisKey(key string) string {
	return "ratelimit:" + key
}

// Allow checks if a request should be allowed for the given key
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	allowed, _, _, err := rl.AllowWithDetails(ctx, key, limit)
	return allowed, err
}

// AllowWithDetails checks and records one request using a sliding window
// kept in a Redis sorted set. Denied requests are not kept in the window,
// so a caller hammering a full window does not extend its own lockout.
// remaining is -1 and resetAt is zero when limit <= 0.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	rkey := redisKey(key)
	now := rl.now()
	windowStart := now.Add(-Window)
	member := uuid.NewString()

	pipe := rl.client.TxPipeline()

	// Remove old entries outside the window
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	countCmd := pipe.ZCard(ctx, rkey)
	oldestCmd := pipe.ZRangeWithScores(ctx, rkey, 0, 0)
	pipe.Expire(ctx, rkey, 2*Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	resetAt := now.Add(Window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(Window)
	}

	count := int(countCmd.Val())
	if count > limit {
		if err := rl.client.ZRem(ctx, rkey, member).Err(); err != nil {
			return false, 0, resetAt, fmt.Errorf("failed to drop denied request: %w", err)
		}
		return false, 0, resetAt, nil
	}

	return true, limit - count, resetAt, nil
}

// GetCurrentUsage returns the current request count in the window
func (rl *RateLimiter) GetCurrentUsage(ctx context.Context, key string) (int64, error) {
	rkey := redisKey(key)
	windowStart := rl.now().Add(-Window)

	if err := rl.client.ZRemRangeByScore(ctx, rkey, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, rkey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset resets the rate limit for a key
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, redisKey(key)).Err()
}

// defaultMaxKeys bounds how many buckets a MemoryLimiter keeps
const defaultMaxKeys = 10000

// MemoryLimiter is a process-local limiter built on token buckets that
// refill limit tokens per minute with a burst of limit. Buckets idle for a
// whole window are full again, so they are dropped after one window; the
// least recently used bucket goes first once maxKeys is reached.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets *storage.LRUCache[*bucket]
	now     func() time.Time
}

type bucket struct {
	limit   int
	limiter *rate.Limiter
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter() *MemoryLimiter {
	return newMemoryLimiter(defaultMaxKeys)
}

func newMemoryLimiter(maxKeys int) *MemoryLimiter {
	return &MemoryLimiter{
		buckets: storage.NewLRUCache[*bucket](maxKeys, Window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(key)
	if !ok || b.limit != limit {
		b = &bucket{
			limit:   limit,
			limiter: rate.NewLimiter(rate.Every(Window/time.Duration(limit)), limit),
		}
	}
	// Set refreshes the idle expiry
	l.buckets.Set(key, b)

	return b.limiter.AllowN(l.now(), 1), nil
}

// Reset forgets the bucket of a key
func (l *MemoryLimiter) Reset(key string) {
	l.buckets.Delete(key)
}
