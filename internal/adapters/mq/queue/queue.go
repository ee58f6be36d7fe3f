// Package queue is the bounded in-memory outbox of pending awards.
package queue

import (
	"context"
	"sync"

	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds r without blocking. Returns ErrFull or ErrClosed when
	// the award was not accepted.
	Enqueue(ctx context.Context, r model.AwardRequest) error
	// Dequeue returns the channel workers receive from. It is closed once
	// the queue is closed and drained.
	Dequeue() <-chan model.AwardRequest
	Len() int
	Capacity() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	awards   chan model.AwardRequest
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.awards = make(chan model.AwardRequest, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

func (q *InMemoryQueue) observe() {
	n := len(q.awards)
	metrics.UpdateQueueSize(n)
	metrics.UpdateQueueUtilization(float64(n) / float64(q.capacity))
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, r model.AwardRequest) error {
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		return err
	}
	// The read lock keeps Close from closing the channel mid-send.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrClosed
	}
	select {
	case q.awards <- r:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrFull
	}
}

func (q *InMemoryQueue) Dequeue() <-chan model.AwardRequest {
	return q.awards
}

func (q *InMemoryQueue) Len() int {
	q.observe()
	return len(q.awards)
}

func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting awards. Pending awards stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.awards)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

var _ Queue = (*InMemoryQueue)(nil)
