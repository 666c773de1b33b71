package ballot

import (
	"context"
	"fmt"
	"time"

	"github.com/lvdashuaibi/ballotbot/internal/lock"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/metrics"
)

const (
	gateRetryInterval = 5 * time.Millisecond
	defaultGateLease  = 30 * time.Second
)

// contextLocker is implemented by locks that can wait for the holder and
// stop when the caller gives up.
type contextLocker interface {
	AcquireLockContext(ctx context.Context, lockName string) (bool, error)
}

// Gate is the single exclusive section every mutating ballot operation runs
// in. Nothing inside it may call the chat platform.
type Gate struct {
	lock    lock.Lock
	name    string
	timeout time.Duration
	lease   time.Duration
	metrics *metrics.MetricService
}

// NewGate builds a gate that waits at most timeout to enter.
func NewGate(l lock.Lock, name string, timeout time.Duration, ms *metrics.MetricService) *Gate {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gate{lock: l, name: name, timeout: timeout, lease: defaultGateLease, metrics: ms}
}

// WithLease sets the TTL of distributed locks. The lease is refreshed while
// the gate is held, so it only bounds how long a crashed holder blocks others.
func (g *Gate) WithLease(lease time.Duration) *Gate {
	if lease > 0 {
		g.lease = lease
	}
	return g
}

// Do runs fn while holding the gate.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	start := time.Now()
	if err := g.enter(ctx); err != nil {
		return err
	}
	g.metrics.ObserveGateWait(time.Since(start))
	defer g.leave()

	if _, local := g.lock.(contextLocker); !local {
		stop := g.keepAlive()
		defer stop()
	}
	return fn()
}

func (g *Gate) enter(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if cl, ok := g.lock.(contextLocker); ok {
		acquired, err := cl.AcquireLockContext(waitCtx, g.name)
		if err != nil {
			return fmt.Errorf("acquire gate %s: %w", g.name, err)
		}
		if acquired {
			return nil
		}
		return g.waitErr(ctx)
	}

	for {
		ok, err := g.lock.AcquireLock(g.name, g.lease)
		if err != nil {
			return fmt.Errorf("acquire gate %s: %w", g.name, err)
		}
		if ok {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return g.waitErr(ctx)
		case <-time.After(gateRetryInterval):
		}
	}
}

// waitErr reports why a wait ended without the gate.
func (g *Gate) waitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrGateTimeout
}

// keepAlive refreshes the distributed lease until the returned stop is called.
func (g *Gate) keepAlive() (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(g.lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				held, err := g.lock.RefreshLock(g.name, g.lease)
				if err != nil || !held {
					logging.Logger.Errorw("ballot gate lease lost", "gate", g.name, "error", err)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (g *Gate) leave() {
	if err := g.lock.ReleaseLock(g.name); err != nil {
		logging.Logger.Errorw("release ballot gate", "gate", g.name, "error", err)
	}
}
