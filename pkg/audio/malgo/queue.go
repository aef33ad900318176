package malgo

import (
	"log/slog"
	"sync"
	"time"
)

// frameQueue is a bounded sample FIFO written by the device callback and read
// by the pipeline worker.
type frameQueue struct {
	mu      sync.Mutex
	samples []int16
	limit   int
	closed  bool
	dropped int

	// notify has capacity one; a pending token means new data arrived.
	notify chan struct{}
}

func newFrameQueue(limit int) *frameQueue {
	return &frameQueue{
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

// push appends samples, dropping the oldest ones beyond the limit.
func (q *frameQueue) push(in []int16) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.samples = append(q.samples, in...)
	if q.limit > 0 && len(q.samples) > q.limit {
		over := len(q.samples) - q.limit
		q.samples = q.samples[over:]
		if q.dropped == 0 {
			slog.Warn("malgo: capture backlog full, dropping oldest samples", "dropped", over)
		}
		q.dropped += over
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop fills buf once len(buf) samples are queued or timeout elapses, and
// returns the number of samples copied.
func (q *frameQueue) pop(buf []int16, timeout time.Duration) int {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.samples) >= len(buf) || q.closed {
			n := q.take(buf)
			q.mu.Unlock()
			return n
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-deadline.C:
			q.mu.Lock()
			n := q.take(buf)
			q.mu.Unlock()
			return n
		}
	}
}

// take copies queued samples into buf. Must be called with q.mu held.
func (q *frameQueue) take(buf []int16) int {
	n := copy(buf, q.samples)
	q.samples = q.samples[n:]
	return n
}

func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.samples = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *frameQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
