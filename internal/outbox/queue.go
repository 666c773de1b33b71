// Package outbox is the in-process event channel used when Kafka is not
// configured. Events are handled by a small worker pool after the publishing
// operation has left the ballot gate.
package outbox

import (
	"context"
	"errors"
	"sync"

	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

var ErrClosed = errors.New("outbox is closed")

type Handler func(ctx context.Context, event *model.BallotEvent) error

type Queue struct {
	events  chan *model.BallotEvent
	workers int

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(size, workers int) *Queue {
	if size <= 0 {
		size = 128
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		events:  make(chan *model.BallotEvent, size),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Publish enqueues event, blocking while the buffer is full.
func (q *Queue) Publish(ctx context.Context, event *model.BallotEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Start(handler Handler) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			for event := range q.events {
				if err := handler(q.ctx, event); err != nil {
					logging.Logger.Warnw("handle ballot event", "worker", workerID, "kind", event.Kind, "error", err)
				}
			}
		}(i)
	}
}

// Stop refuses new events, drains the buffer and waits for the workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.events)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}
