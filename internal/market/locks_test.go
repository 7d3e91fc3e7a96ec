package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

type fakeLease struct {
	mu        sync.Mutex
	extends   int
	released  int
	extendErr error
}

func (l *fakeLease) Extend(context.Context, time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return l.extendErr
}

func (l *fakeLease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
}

func (l *fakeLease) counts() (extends, released int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extends, l.released
}

// fakeLockManager reports the lock as held for the first busy attempts (or
// forever when busy is negative), then grants it.
type fakeLockManager struct {
	mu        sync.Mutex
	busy      int
	err       error
	extendErr error
	attempts  int
	leases    []*fakeLease
}

func (m *fakeLockManager) Acquire(context.Context, string, time.Duration) (domain.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.err != nil {
		return nil, m.err
	}
	if m.busy != 0 {
		if m.busy > 0 {
			m.busy--
		}
		return nil, domain.ErrLockHeld
	}
	l := &fakeLease{extendErr: m.extendErr}
	m.leases = append(m.leases, l)
	return l, nil
}

func (m *fakeLockManager) setBusy(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = n
}

func testLocker(remote domain.LockManager, ttl time.Duration) *locker {
	return newLocker(remote, ttl, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// requireLocalFree fails unless key can be locked again in-process.
func requireLocalFree(t *testing.T, l *locker, key string) {
	t.Helper()
	got := make(chan func(), 1)
	go func() { got <- l.local.lock(key) }()
	select {
	case unlock := <-got:
		unlock()
	case <-time.After(time.Second):
		t.Fatalf("local lock on %q was not released", key)
	}
}

func TestLockerRetriesWhileHeld(t *testing.T) {
	remote := &fakeLockManager{busy: 2}
	l := testLocker(remote, time.Minute)

	unlock, err := l.acquire(context.Background(), "order:1")
	require.NoError(t, err)
	require.Equal(t, 3, remote.attempts)

	unlock()
	require.Len(t, remote.leases, 1)
	_, released := remote.leases[0].counts()
	require.Equal(t, 1, released)
	requireLocalFree(t, l, "order:1")
}

func TestLockerGivesUpOnContextAndFreesLocalLock(t *testing.T) {
	remote := &fakeLockManager{busy: -1}
	l := testLocker(remote, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := l.acquire(ctx, "order:2")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	requireLocalFree(t, l, "order:2")

	remote.setBusy(0)
	unlock, err := l.acquire(context.Background(), "order:2")
	require.NoError(t, err)
	unlock()
}

func TestLockerReturnsRemoteErrors(t *testing.T) {
	down := errors.New("connection refused")
	remote := &fakeLockManager{err: down}
	l := testLocker(remote, time.Minute)

	_, err := l.acquire(context.Background(), "order:3")
	require.ErrorIs(t, err, down)
	require.Equal(t, 1, remote.attempts)
	requireLocalFree(t, l, "order:3")
}

func TestLockerExtendsLeaseUntilReleased(t *testing.T) {
	remote := &fakeLockManager{}
	l := testLocker(remote, 30*time.Millisecond)

	unlock, err := l.acquire(context.Background(), "order:4")
	require.NoError(t, err)
	lease := remote.leases[0]

	require.Eventually(t, func() bool {
		extends, _ := lease.counts()
		return extends >= 3
	}, 2*time.Second, 5*time.Millisecond)

	unlock()
	extends, released := lease.counts()
	require.Equal(t, 1, released)

	time.Sleep(50 * time.Millisecond)
	after, _ := lease.counts()
	require.Equal(t, extends, after, "lease extended after release")
}

func TestLockerStopsExtendingLostLease(t *testing.T) {
	remote := &fakeLockManager{extendErr: domain.ErrLockLost}
	l := testLocker(remote, 30*time.Millisecond)

	unlock, err := l.acquire(context.Background(), "order:5")
	require.NoError(t, err)
	lease := remote.leases[0]

	require.Eventually(t, func() bool {
		extends, _ := lease.counts()
		return extends == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	extends, _ := lease.counts()
	require.Equal(t, 1, extends)

	unlock()
	_, released := lease.counts()
	require.Equal(t, 1, released)
}
