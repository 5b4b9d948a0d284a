package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/platewatch/internal/domain/model"
)

func frame(loc string) model.Frame {
	return model.Frame{Width: 2, Height: 2, Channels: model.ChannelsGray, Pix: make([]byte, 4), Location: loc}
}

func TestFrameQueue_BasicOperations(t *testing.T) {
	q := NewFrameQueue()
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 1 {
		t.Errorf("expected default capacity 1, got %d", c)
	}

	if !q.Enqueue(ctx, frame("gate-a")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	f, ok := q.Dequeue(ctx)
	if !ok || f.Location != "gate-a" {
		t.Errorf("expected gate-a frame, got %v %v", f.Location, ok)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestFrameQueue_DropsWhenFull(t *testing.T) {
	q := NewFrameQueue()
	ctx := context.Background()

	if !q.Enqueue(ctx, frame("first")) {
		t.Error("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, frame("second")) {
		t.Error("expected enqueue to fail when full")
	}

	f, _ := q.Dequeue(ctx)
	if f.Location != "first" {
		t.Errorf("expected the older frame to survive, got %s", f.Location)
	}
}

func TestFrameQueue_Capacity(t *testing.T) {
	q := NewFrameQueue(WithCapacity(3), WithCapacity(0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !q.Enqueue(ctx, frame("f")) {
			t.Errorf("expected enqueue %d to succeed", i)
		}
	}
	if q.Enqueue(ctx, frame("f")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(); l != 3 {
		t.Errorf("expected length 3, got %d", l)
	}
}

func TestFrameQueue_CancelledContext(t *testing.T) {
	q := NewFrameQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, frame("f")) {
		t.Error("expected enqueue to fail with a cancelled context")
	}
	if _, ok := q.Dequeue(ctx); ok {
		t.Error("expected dequeue to give up with a cancelled context")
	}
}

func TestFrameQueue_ConcurrentProducer(t *testing.T) {
	q := NewFrameQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	accepted := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if q.Enqueue(ctx, frame("f")) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
			}
		}()
	}

	consumed := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, ok := q.Dequeue(ctx); !ok {
				return
			}
			consumed++
		}
	}()

	wg.Wait()
	_ = q.Close()
	<-done

	if consumed != accepted {
		t.Errorf("expected every accepted frame to be consumed, accepted %d consumed %d", accepted, consumed)
	}
}

func TestFrameQueue_GracefulShutdown(t *testing.T) {
	q := NewFrameQueue()
	ctx := context.Background()

	if !q.Enqueue(ctx, frame("last")) {
		t.Error("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, frame("late")) {
		t.Error("expected enqueue to fail after closing")
	}

	// Queued frames drain before the queue reports closed.
	if f, ok := q.Dequeue(ctx); !ok || f.Location != "last" {
		t.Errorf("expected queued frame after close, got %v %v", f.Location, ok)
	}
	if _, ok := q.Dequeue(ctx); ok {
		t.Error("expected dequeue to report closed")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
