package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLock serializes callers inside one process. Each name is backed by a
// one-slot channel so acquisition can give up after a timeout.
type LocalLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{slots: make(map[string]chan struct{})}
}

func (l *LocalLock) slot(lockName string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[lockName]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[lockName] = s
	}
	return s
}

func (l *LocalLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	s := l.slot(lockName)

	select {
	case s <- struct{}{}:
		return true, nil
	default:
	}
	if timeout <= 0 {
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s <- struct{}{}:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// AcquireLockContext waits for lockName until it is free or ctx is done.
func (l *LocalLock) AcquireLockContext(ctx context.Context, lockName string) (bool, error) {
	s := l.slot(lockName)

	select {
	case s <- struct{}{}:
		return true, nil
	case <-ctx.Done():
		return false, nil
	}
}

// RefreshLock reports whether lockName is currently held. Local locks never expire.
func (l *LocalLock) RefreshLock(lockName string, _ time.Duration) (bool, error) {
	return len(l.slot(lockName)) == 1, nil
}

func (l *LocalLock) ReleaseLock(lockName string) error {
	s := l.slot(lockName)
	select {
	case <-s:
		return nil
	default:
		return fmt.Errorf("lock %s is not held", lockName)
	}
}

func (l *LocalLock) ReleaseAllLocks() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.slots {
		select {
		case <-s:
		default:
		}
	}
}

func (l *LocalLock) Close() error {
	l.ReleaseAllLocks()
	return nil
}
