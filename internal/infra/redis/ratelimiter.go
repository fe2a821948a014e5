package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix       = "notify:rl"
	defaultLimitPerSec int64 = 100
	waitBackoffStart         = 10 * time.Millisecond
	waitBackoffCap           = 50 * time.Millisecond
)

// countScript bumps the per-second counter and stamps its expiry on first
// touch. Returning the counter keeps the limit comparison in Go so the same
// script serves any limit.
var countScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], 2)
end
return current
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter enforces a shared per-channel send budget across all
// worker processes using one-second Redis counter windows.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Allow reports whether one more send fits into the current one-second
// window for the channel. The counter bump is unconditional, so a rejected
// caller has still consumed nothing: only calls at or under the limit count
// as admitted.
func (r *RedisRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return false, fmt.Errorf("channel is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	window := r.now().UTC().Unix()
	key := fmt.Sprintf("%s:%s:%d", rateLimitKeyPrefix, normalized, window)

	current, err := countScript.Run(ctx, r.client, []string{key}).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return current <= r.limitPerSec, nil
}

// Wait blocks until the channel has budget or the context ends. Backoff
// doubles from 10ms up to a 50ms cap so saturated channels poll gently.
func (r *RedisRateLimiter) Wait(ctx context.Context, channel string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := waitBackoffStart
	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff *= 2
		if backoff > waitBackoffCap {
			backoff = waitBackoffCap
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
