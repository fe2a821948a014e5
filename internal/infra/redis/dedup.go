package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/dedup"
	goredis "github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 30 * time.Minute

// claimScript claims the fingerprint key for the caller's notification id
// unless another id already holds it, in which case the holder is returned.
// The single round trip makes the check-and-set atomic across concurrent
// submissions.
var claimScript = goredis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if existing then
  return existing
end
redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
return ""
`)

var _ dedup.Index = (*RedisDedupIndex)(nil)

// RedisDedupIndex is a TTL-bounded dedup index backed by Redis.
type RedisDedupIndex struct {
	client *goredis.Client
	ttl    time.Duration
	script *goredis.Script
}

func NewRedisDedupIndex(client *goredis.Client, ttl time.Duration) (*RedisDedupIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	return &RedisDedupIndex{
		client: client,
		ttl:    ttl,
		script: claimScript,
	}, nil
}

func (d *RedisDedupIndex) CheckAndSet(ctx context.Context, fingerprint string, notificationID string) (dedup.Result, error) {
	if d == nil || d.client == nil || d.script == nil {
		return dedup.Result{}, fmt.Errorf("dedup index is not initialized")
	}
	if strings.TrimSpace(fingerprint) == "" {
		return dedup.Result{}, fmt.Errorf("fingerprint is required")
	}
	if strings.TrimSpace(notificationID) == "" {
		return dedup.Result{}, fmt.Errorf("notification id is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("dedup:%s", fingerprint)
	ttlSeconds := int64(d.ttl / time.Second)

	existing, err := d.script.Run(ctx, d.client, []string{key}, notificationID, ttlSeconds).Text()
	if err != nil {
		return dedup.Result{}, fmt.Errorf("failed to evaluate dedup claim: %w", err)
	}

	if existing == "" {
		return dedup.Result{}, nil
	}

	return dedup.Result{
		AlreadyExists:          true,
		ExistingNotificationID: existing,
	}, nil
}
