package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
)

const (
	// Only touch the key if we still own it.
	refreshScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	unlockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// RedLock implements the Redlock algorithm over independent Redis nodes.
type RedLock struct {
	clients    []*redis.Client
	addrs      []string
	ctx        context.Context
	mu         sync.Mutex
	locks      map[string]string // lock name -> token
	retries    int
	retryDelay time.Duration
}

func NewRedLock(cfg config.RedisConfig) (*RedLock, error) {
	ctx := context.Background()

	var clients []*redis.Client
	for _, addr := range cfg.LockAddresses {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			for _, c := range clients {
				c.Close()
			}
			client.Close()
			return nil, fmt.Errorf("ping redlock node %s: %w", addr, err)
		}

		clients = append(clients, client)
	}

	return NewRedLockWithClients(clients, cfg.LockAddresses, cfg.LockRetryCount, cfg.LockRetryDelay), nil
}

// NewRedLockWithClients builds a RedLock over already connected nodes.
func NewRedLockWithClients(clients []*redis.Client, addrs []string, retries int, retryDelay time.Duration) *RedLock {
	if retries <= 0 {
		retries = 1
	}
	return &RedLock{
		clients:    clients,
		addrs:      addrs,
		ctx:        context.Background(),
		locks:      make(map[string]string),
		retries:    retries,
		retryDelay: retryDelay,
	}
}

func (r *RedLock) quorum() int {
	return len(r.clients)/2 + 1
}

func (r *RedLock) addr(i int) string {
	if i < len(r.addrs) {
		return r.addrs[i]
	}
	return fmt.Sprintf("node-%d", i)
}

// AcquireLock takes lockName on a majority of nodes. The lock expires after timeout.
func (r *RedLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	token := uuid.NewString()

	for attempt := 0; attempt < r.retries; attempt++ {
		success := 0
		start := time.Now()

		for i, client := range r.clients {
			ok, err := client.SetNX(r.ctx, lockName, token, timeout).Result()
			if err != nil {
				logging.Logger.Warnw("redlock setnx failed", "node", r.addr(i), "lock", lockName, "error", err)
				continue
			}
			if ok {
				success++
			}
		}

		validity := timeout - time.Since(start)
		if success >= r.quorum() && validity > 0 {
			r.mu.Lock()
			r.locks[lockName] = token
			r.mu.Unlock()
			return true, nil
		}

		r.unlockAll(lockName, token)

		if attempt < r.retries-1 && r.retryDelay > 0 {
			time.Sleep(r.retryDelay)
		}
	}

	return false, nil
}

func (r *RedLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	r.mu.Lock()
	token, exists := r.locks[lockName]
	r.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("lock %s is not held", lockName)
	}

	success := 0
	for i, client := range r.clients {
		result, err := client.Eval(r.ctx, refreshScript, []string{lockName}, token, int64(timeout/time.Millisecond)).Int64()
		if err != nil {
			logging.Logger.Warnw("redlock refresh failed", "node", r.addr(i), "lock", lockName, "error", err)
			continue
		}
		if result == 1 {
			success++
		}
	}

	if success >= r.quorum() {
		return true, nil
	}

	r.mu.Lock()
	delete(r.locks, lockName)
	r.mu.Unlock()
	return false, nil
}

func (r *RedLock) ReleaseLock(lockName string) error {
	r.mu.Lock()
	token, exists := r.locks[lockName]
	delete(r.locks, lockName)
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("lock %s is not held", lockName)
	}

	r.unlockAll(lockName, token)
	return nil
}

func (r *RedLock) unlockAll(lockName string, token string) {
	for i, client := range r.clients {
		if err := client.Eval(r.ctx, unlockScript, []string{lockName}, token).Err(); err != nil {
			logging.Logger.Warnw("redlock unlock failed", "node", r.addr(i), "lock", lockName, "error", err)
		}
	}
}

func (r *RedLock) ReleaseAllLocks() {
	r.mu.Lock()
	held := r.locks
	r.locks = make(map[string]string)
	r.mu.Unlock()

	for name, token := range held {
		r.unlockAll(name, token)
	}
}

func (r *RedLock) Close() error {
	r.ReleaseAllLocks()

	for i, client := range r.clients {
		if err := client.Close(); err != nil {
			logging.Logger.Warnw("close redlock node", "node", r.addr(i), "error", err)
		}
	}
	return nil
}
