package render

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueEmpty is returned by ClaimBlocking when nothing arrived in time.
var ErrQueueEmpty = errors.New("render queue: empty")

// Queue carries render ids from producers to the executor. Only ids travel
// through it; job state is re-read when a worker picks the id up.
type Queue interface {
	Enqueue(ctx context.Context, id string) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, id string) error
}

// MemoryQueue is an unbounded in-process FIFO of ids.
type MemoryQueue struct {
	mu     sync.Mutex
	ids    []string
	signal chan struct{}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

// Enqueue appends id and never blocks.
func (q *MemoryQueue) Enqueue(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// ClaimBlocking pops the oldest id, waiting up to timeout. A non-positive
// timeout waits until ctx is done.
func (q *MemoryQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		if id, ok := q.pop(); ok {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-expired:
			return "", ErrQueueEmpty
		case <-q.signal:
		}
	}
}

// Ack is a no-op; claimed ids are already gone from memory.
func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	return nil
}

// Len reports the number of waiting ids.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *MemoryQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids[0] = ""
	q.ids = q.ids[1:]
	if len(q.ids) > 0 {
		// wake another waiter for the remaining ids
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return id, true
}

var _ Queue = (*MemoryQueue)(nil)
