// Package queue implements the single-producer/multi-consumer bounded
// hand-off queue between the WebSocket Ingress and the Processor Pool.
//
// Grounded on ws/worker_pool.go's Submit: a buffered channel with a
// non-blocking send and an atomic drop counter, here carrying raw frame
// bytes instead of tasks.
package queue

import (
	"context"
	"sync/atomic"
	"time"
)

// Frame is one raw inbound WebSocket frame, queued between decode and
// publish.
type Frame = []byte

// Queue is a FIFO buffer of fixed capacity. Enqueue never blocks: a
// full queue drops the frame and increments Dropped. Dequeue supports a
// bounded wait so consumers can observe shutdown.
type Queue struct {
	ch      chan Frame
	dropped int64
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan Frame, capacity)}
}

// TryEnqueue attempts a non-blocking send. It returns false if the
// queue was full, in which case the caller must count the drop (the
// Queue itself also tracks it via Dropped for convenience).
func (q *Queue) TryEnqueue(f Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		atomic.AddInt64(&q.dropped, 1)
		return false
	}
}

// Dequeue blocks up to timeout waiting for a frame, returning ok=false
// on timeout so the caller can re-check its shutdown condition. ctx
// cancellation also unblocks the wait immediately.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (f Frame, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.ch:
		return f, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Len returns the current number of queued frames.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue's fixed capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Dropped returns the total number of frames dropped due to a full
// queue since process start.
func (q *Queue) Dropped() int64 {
	return atomic.LoadInt64(&q.dropped)
}

// UtilizationPercent returns the current fill level as a percentage of
// capacity, for the Heartbeat Reporter.
func (q *Queue) UtilizationPercent() float64 {
	c := q.Cap()
	if c == 0 {
		return 0
	}
	return float64(q.Len()) / float64(c) * 100
}
