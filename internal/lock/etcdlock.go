package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
)

const (
	defaultTTL = 10 // seconds
)

// EtcdLock holds locks as lease-bound keys under /locks/. Every lock shares
// one Lease client, closed together with the etcd client.
type EtcdLock struct {
	kv     clientv3.KV
	lease  clientv3.Lease
	client io.Closer
	ttl    int64
	mu     sync.Mutex
	locks  map[string]*lockEntry
}

type lockEntry struct {
	leaseID clientv3.LeaseID
	key     string
	cancel  context.CancelFunc // stops keepAlive
}

func NewETCDLock(cfg config.ETCDConfig) (*EtcdLock, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}

	ttl := int64(cfg.SessionTTL / time.Second)
	if ttl <= 0 {
		ttl = defaultTTL
	}

	return newEtcdLock(cli, clientv3.NewLease(cli), cli, ttl), nil
}

func newEtcdLock(kv clientv3.KV, lease clientv3.Lease, client io.Closer, ttl int64) *EtcdLock {
	return &EtcdLock{
		kv:     kv,
		lease:  lease,
		client: client,
		ttl:    ttl,
		locks:  make(map[string]*lockEntry),
	}
}

func (el *EtcdLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	// Another goroutine of this instance holds it; the caller retries.
	if _, ok := el.locks[lockName]; ok {
		return false, nil
	}

	key := fmt.Sprintf("/locks/%s", lockName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	grantResp, err := el.lease.Grant(ctx, el.ttl)
	if err != nil {
		return false, fmt.Errorf("grant lease: %w", err)
	}

	txnResp, err := el.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, "", clientv3.WithLease(grantResp.ID))).
		Commit()
	if err != nil {
		el.lease.Revoke(context.Background(), grantResp.ID)
		return false, fmt.Errorf("lock txn: %w", err)
	}

	if !txnResp.Succeeded {
		el.lease.Revoke(context.Background(), grantResp.ID)
		return false, nil
	}

	keepAliveCtx, keepAliveCancel := context.WithCancel(context.Background())
	go el.keepAlive(keepAliveCtx, grantResp.ID)

	el.locks[lockName] = &lockEntry{
		leaseID: grantResp.ID,
		key:     key,
		cancel:  keepAliveCancel,
	}

	return true, nil
}

func (el *EtcdLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	entry, ok := el.locks[lockName]
	if !ok {
		return false, fmt.Errorf("lock %s is not held", lockName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := el.lease.KeepAliveOnce(ctx, entry.leaseID)
	if err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			entry.cancel()
			delete(el.locks, lockName)
			return false, nil
		}
		return false, fmt.Errorf("keep alive: %w", err)
	}

	return true, nil
}

func (el *EtcdLock) ReleaseLock(lockName string) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	return el.releaseLock(lockName)
}

func (el *EtcdLock) ReleaseAllLocks() {
	el.mu.Lock()
	defer el.mu.Unlock()

	for lockName := range el.locks {
		if err := el.releaseLock(lockName); err != nil {
			logging.Logger.Warnw("release etcd lock", "lock", lockName, "error", err)
		}
	}
}

func (el *EtcdLock) Close() error {
	el.ReleaseAllLocks()
	return errors.Join(el.lease.Close(), el.client.Close())
}

func (el *EtcdLock) keepAlive(ctx context.Context, leaseID clientv3.LeaseID) {
	ticker := time.NewTicker(time.Duration(el.ttl) * time.Second / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := el.lease.KeepAliveOnce(ctx, leaseID); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (el *EtcdLock) releaseLock(lockName string) error {
	entry, ok := el.locks[lockName]
	if !ok {
		return nil
	}

	entry.cancel()
	delete(el.locks, lockName)

	if _, err := el.kv.Delete(context.Background(), entry.key); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}

	if _, err := el.lease.Revoke(context.Background(), entry.leaseID); err != nil {
		return fmt.Errorf("revoke lease: %w", err)
	}

	return nil
}
