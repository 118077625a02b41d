package worker

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// Queue is an unbounded FIFO of job ids with a blocking Pop.
type Queue struct {
	mu     sync.Mutex
	items  *linkedlistqueue.Queue
	signal chan struct{}
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{items: linkedlistqueue.New(), signal: make(chan struct{}, 1)}
}

// Push appends id. It never blocks.
func (q *Queue) Push(id string) {
	q.mu.Lock()
	q.items.Enqueue(id)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop removes the oldest id, waiting until one is available or ctx ends.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		value, ok := q.items.Dequeue()
		q.mu.Unlock()
		if ok {
			return value.(string), nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.signal:
		}
	}
}

// Len reports the number of waiting ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Size()
}
