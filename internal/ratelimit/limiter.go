package ratelimit

import "context"

// RateLimiter caps outbound provider calls per channel across all workers.
// Allow is a single non-blocking probe; Wait blocks until budget frees up
// or the context ends.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}
