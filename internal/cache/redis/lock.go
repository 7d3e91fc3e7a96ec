package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// releaseLua deletes the lock only while it still carries the holder's token,
// so an expired holder never releases a lock someone else has since taken.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua resets the expiry only while the holder's token is still set.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// releaseTimeout bounds the release round trip, which runs detached from the
// caller's context.
const releaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager with SET NX PX and token-checked
// extend and release. The engine uses it to serialize work on one order
// across replicas.
type LockManager struct {
	c       *Client
	release *redis.Script
	extend  *redis.Script
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{c: c, release: redis.NewScript(releaseLua), extend: redis.NewScript(extendLua)}
}

// Acquire takes the lock on key for ttl. It returns domain.ErrLockHeld when
// another holder owns it.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lease, error) {
	token := uuid.NewString()
	k := lm.c.Key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}
	return &lease{lm: lm, key: k, token: token}, nil
}

type lease struct {
	lm    *LockManager
	key   string
	token string
	once  sync.Once
}

func (l *lease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := l.lm.extend.Run(ctx, l.lm.c.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis: extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("redis: extend lock %s: %w", l.key, domain.ErrLockLost)
	}
	return nil
}

func (l *lease) Release() {
	l.once.Do(func() {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = l.lm.release.Run(rctx, l.lm.c.rdb, []string{l.key}, l.token).Err()
	})
}

var _ domain.LockManager = (*LockManager)(nil)
