package queue

// Option applies a configuration option to the FrameQueue.
type Option func(*FrameQueue)

// WithCapacity sets how many frames may wait for the pipeline.
func WithCapacity(capacity int) Option {
	return func(q *FrameQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}
