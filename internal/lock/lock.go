package lock

import (
	"time"
)

// Lock is a named mutual-exclusion lock. Implementations range from a single
// process (LocalLock) to a cluster of ballot instances (EtcdLock, RedLock).
type Lock interface {
	// AcquireLock tries to take lockName within timeout.
	// It returns false without error when the lock is held elsewhere.
	AcquireLock(lockName string, timeout time.Duration) (bool, error)

	// RefreshLock extends a held lock. It returns false when the lock has
	// been lost.
	RefreshLock(lockName string, timeout time.Duration) (bool, error)

	// ReleaseLock releases a held lock.
	ReleaseLock(lockName string) error

	// ReleaseAllLocks releases every lock this client holds.
	ReleaseAllLocks()

	// Close releases all locks and closes the underlying client.
	Close() error
}
