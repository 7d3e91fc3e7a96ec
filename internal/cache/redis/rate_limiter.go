package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// slidingWindowLua keeps one sorted-set member per admitted request scored by
// its timestamp in microseconds.
//
// KEYS[1] window key; ARGV[1] now, ARGV[2] window, ARGV[3] limit, ARGV[4] member.
// Returns {allowed, count}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('PEXPIRE', key, math.ceil(window / 1000))
    return {1, count + 1}
end
return {0, count}
`

const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter as a sliding window per key.
type RateLimiter struct {
	c      *Client
	window *redis.Script
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by c.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c, window: redis.NewScript(slidingWindowLua), now: time.Now}
}

// Allow admits and counts one request for key unless limit requests were
// already admitted within the trailing window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.window.Run(ctx, rl.c.rdb,
		[]string{rl.c.Key("ratelimit", key)},
		rl.now().UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply length %d", key, len(res))
	}
	return res[0] == 1, nil
}

// Wait blocks until one request per second is admitted for key.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		ok, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
