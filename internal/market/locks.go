package market

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/telemetry"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 50 * time.Millisecond
)

// keyedMutex hands out one mutex per key and forgets it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// locker serializes work per key inside the process and, when a LockManager
// is configured, across every process sharing it. A remote lease is extended
// every ttl/3 until it is released.
type locker struct {
	local  *keyedMutex
	remote domain.LockManager
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

func newLocker(remote domain.LockManager, ttl, retry time.Duration, logger *slog.Logger) *locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if retry <= 0 {
		retry = defaultLockRetry
	}
	return &locker{local: newKeyedMutex(), remote: remote, ttl: ttl, retry: retry, logger: logger}
}

func (l *locker) acquire(ctx context.Context, key string) (func(), error) {
	unlockLocal := l.local.lock(key)
	if l.remote == nil {
		return unlockLocal, nil
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		lease, err := l.remote.Acquire(ctx, key, l.ttl)
		if err == nil {
			stop := l.keepAlive(key, lease)
			return func() {
				stop()
				lease.Release()
				unlockLocal()
			}, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			unlockLocal()
			return nil, err
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// keepAlive extends lease until the returned stop func is called or the
// lease is lost. stop waits for the renewal goroutine to exit.
func (l *locker) keepAlive(key string, lease domain.Lease) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := lease.Extend(ctx, l.ttl)
			cancel()
			if err == nil {
				continue
			}
			telemetry.LockLossesCounter.Inc()
			l.logger.Error("market: lock lease not extended",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, domain.ErrLockLost) {
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}
