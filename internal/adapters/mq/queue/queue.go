// Package queue hands decoded frames from the capture loop to the pipeline.
//
// The queue is deliberately tiny: when the pipeline is busy, new frames are
// dropped rather than buffered so recognition always works on a recent frame.
package queue

import (
	"context"
	"sync"

	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1
)

// Queue provides non-blocking enqueue and blocking dequeue of frames.
type Queue interface {
	// Enqueue adds a frame. Returns false if the queue is full or closed and
	// the frame was dropped.
	Enqueue(ctx context.Context, f model.Frame) bool

	// Dequeue blocks until a frame is available. ok is false once the queue
	// is closed and drained or ctx is done.
	Dequeue(ctx context.Context) (model.Frame, bool)

	// Len returns the current number of queued frames.
	Len() int

	// Close stops accepting frames. Queued frames can still be dequeued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// FrameQueue implements Queue using a buffered channel.
type FrameQueue struct {
	frames   chan model.Frame
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewFrameQueue creates a frame queue with configuration options.
func NewFrameQueue(opts ...Option) *FrameQueue {
	q := &FrameQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.frames = make(chan model.Frame, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a frame without blocking.
func (q *FrameQueue) Enqueue(ctx context.Context, f model.Frame) bool { //nolint:gocritic // hugeParam: frames travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordFrameDropped("closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordFrameDropped("context_cancelled")
		return false
	}

	select {
	case q.frames <- f:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordFrameDropped("queue_full")
		return false
	}
}

// Dequeue waits for the next frame.
func (q *FrameQueue) Dequeue(ctx context.Context) (model.Frame, bool) {
	select {
	case f, ok := <-q.frames:
		if !ok {
			return model.Frame{}, false
		}
		metrics.RecordQueueDequeue()
		q.updateGauges()
		return f, true
	case <-ctx.Done():
		return model.Frame{}, false
	}
}

// Len returns the current number of queued frames.
func (q *FrameQueue) Len() int {
	return len(q.frames)
}

// Capacity returns the configured capacity.
func (q *FrameQueue) Capacity() int {
	return q.capacity
}

func (q *FrameQueue) updateGauges() {
	size := len(q.frames)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops accepting frames.
func (q *FrameQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.frames)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *FrameQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
