// Package worker runs the frame pipeline off the capture loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/pkg/logger"
	"github.com/okian/platewatch/pkg/metrics"
)

// Processor handles one frame end to end.
type Processor interface {
	Process(ctx context.Context, frame model.Frame) error
}

// Queue defines how the worker receives frames.
type Queue interface {
	Dequeue(ctx context.Context) (model.Frame, bool)
}

// Worker processes frames one at a time.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called or
	// the queue is closed.
	Run(ctx context.Context)

	// Shutdown stops the worker after the frame in progress.
	Shutdown(ctx context.Context) error
}

// FrameWorker implements Worker. A single FrameWorker guarantees that at
// most one frame is in detection or recognition at any time.
type FrameWorker struct {
	queue     Queue
	processor Processor
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewFrameWorker creates a worker with configuration options.
func NewFrameWorker(queue Queue, processor Processor, opts ...Option) *FrameWorker {
	w := &FrameWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *FrameWorker) Run(ctx context.Context) {
	defer close(w.done)

	// Dequeue stops waiting when either ctx ends or Shutdown is called.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for {
		frame, ok := w.queue.Dequeue(runCtx)
		if !ok {
			return
		}
		if err := w.processFrame(ctx, frame); err != nil {
			w.logger.Error(ctx, "error processing frame", logger.Error(err))
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *FrameWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *FrameWorker) Done() <-chan struct{} {
	return w.done
}

func (w *FrameWorker) processFrame(ctx context.Context, frame model.Frame) error { //nolint:gocritic // hugeParam: frames travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.processor.Process(ctx, frame); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "process_error")
		return fmt.Errorf("process frame from %s: %w", frame.Location, err)
	}
	return nil
}
