// Package memory provides the in-process FIFO of crawl tasks shared by the
// worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

// Queue is a bounded FIFO with context-aware operations. It is safe for any
// number of concurrent producers and consumers.
type Queue struct {
	ch      chan crawler.Task
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.Task, capacity),
	}
}

// Enqueue pushes a task, blocking while the queue is full. A closed queue
// rejects the task with crawler.ErrQueueClosed.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return crawler.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task. Once the queue is closed and drained it returns
// crawler.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Task, error) {
	// Fail fast on a cancelled context even when tasks remain buffered.
	if err := ctx.Err(); err != nil {
		return crawler.Task{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return crawler.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return crawler.Task{}, crawler.ErrQueueClosed
		}
		return task, nil
	}
}

// Len returns the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting tasks. Buffered tasks can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
