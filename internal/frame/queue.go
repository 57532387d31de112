package frame

import (
	"log"
	"sync"
	"time"
)

// EventWaitPeriod is the blocking-dequeue cancellation window: ReadFront
// never blocks longer than this before giving the caller a chance to check
// a stop flag.
const EventWaitPeriod = 30 * time.Millisecond

// Queue is the pool + ready-queue + pending-assembly described by the
// frame reassembly contract: segments arrive via WriteSegment (typically
// from the encoder's callback thread) and complete access units are taken
// out via ReadFront (typically from a dedicated drain thread).
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int // pool size: |free|+|pending|+|ready| when no temporaries are in flight
	bufSize  int // capacity of each pool buffer

	free    []*Buffer
	pending *Buffer
	ready   []*Buffer

	closed bool
}

// NewQueue builds a queue with poolSize buffers, each able to hold up to
// bufSize bytes.
func NewQueue(poolSize, bufSize int) *Queue {
	q := &Queue{capacity: poolSize, bufSize: bufSize}
	q.cond = sync.NewCond(&q.mu)
	q.free = make([]*Buffer, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		q.free = append(q.free, NewBuffer(bufSize))
	}
	return q
}

// Stats reports the current sizes of the three sequences, for metrics and
// for the |free|+|pending|+|ready|=capacity invariant check in tests.
type Stats struct {
	Free, Pending, Ready int
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := 0
	if q.pending != nil {
		pending = 1
	}
	return Stats{Free: len(q.free), Pending: pending, Ready: len(q.ready)}
}

// WriteSegment implements the write path of the frame reassembly contract.
// It is safe to call from the encoder's callback thread; it must do no
// blocking work beyond taking the queue's mutex.
func (q *Queue) WriteSegment(seg Segment) {
	if len(seg.Data) == 0 && seg.Flags == 0 {
		return // EOS heartbeat, ignored
	}
	if len(seg.Data) >= q.bufSize {
		log.Printf("[frame] dropping segment of %d bytes, exceeds buffer capacity %d", len(seg.Data), q.bufSize)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending != nil {
		if err := q.pending.Append(seg); err != nil {
			log.Printf("[frame] dropping partial access unit on append failure: %v", err)
			q.discardPending()
			return
		}
		if q.pending.Flags().IsFrameEnd() {
			q.promotePending()
		}
		return
	}

	buf := q.takeFree(len(seg.Data))
	if err := buf.Copy(seg); err != nil {
		log.Printf("[frame] dropping segment on copy failure: %v", err)
		return
	}

	if buf.Flags().IsConfig() && !buf.Flags().IsFrameEnd() {
		q.pending = buf
		return
	}
	q.ready = append(q.ready, buf)
	q.cond.Broadcast()
}

// takeFree pops a buffer from the free list, or lazily allocates a
// temporary one sized for segLen if the pool is exhausted. The buffer is
// reset here, at the point it is taken for reuse, not when it was
// returned to the free list — a buffer sitting on the free list still
// carries the flags/bytes of its last access unit until that moment.
func (q *Queue) takeFree(segLen int) *Buffer {
	if n := len(q.free); n > 0 {
		buf := q.free[n-1]
		q.free = q.free[:n-1]
		buf.Reset()
		return buf
	}
	log.Printf("[frame] free list exhausted, allocating temporary buffer")
	size := q.bufSize
	if segLen+1 > size {
		size = segLen + 1
	}
	return newTemporaryBuffer(size)
}

// promotePending moves the pending assembly to ready and signals a waiter.
func (q *Queue) promotePending() {
	q.ready = append(q.ready, q.pending)
	q.pending = nil
	q.cond.Broadcast()
}

// discardPending drops the in-progress assembly and returns its buffer to
// the pool (or discards it if temporary). The buffer is not reset here:
// like takeFree, reset happens when a buffer is taken back off the free
// list for reuse, not when it is returned to it.
func (q *Queue) discardPending() {
	if q.pending != nil && !q.pending.Temporary() {
		q.free = append(q.free, q.pending)
	}
	q.pending = nil
}

// ReadFront implements the read path: pop the head of ready, blocking up
// to timeout if ready is currently empty. Returns (nil, false) on timeout
// or if the queue has been closed.
func (q *Queue) ReadFront(timeout time.Duration) (*Buffer, bool) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ready) == 0 && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		q.waitFor(remaining)
	}
	if len(q.ready) == 0 {
		return nil, false
	}

	buf := q.ready[0]
	q.ready = q.ready[1:]
	if !buf.Temporary() {
		// Returned to the free list as-is; the caller still owns buf's
		// current bytes/flags until it reads them, and the buffer is only
		// reset the next time takeFree hands it out for reuse.
		q.free = append(q.free, buf)
	}
	return buf, true
}

// waitFor blocks on the condition variable for at most d, assuming the
// caller holds q.mu. It is called in a loop by ReadFront so spurious or
// early wakeups just re-check the predicate.
func (q *Queue) waitFor(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	q.cond.Wait()
	timer.Stop()
}

// Close wakes any blocked ReadFront call so a drain thread observing a
// stop flag can exit within one EventWaitPeriod.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Reopen clears the closed flag and resets the pool for a fresh session:
// every ready and pending pool buffer goes back to the free list and
// temporary buffers are dropped. The Encoder Wrapper does not call it;
// its Reinit builds a new Queue instead.
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
	for _, buf := range q.ready {
		if !buf.Temporary() {
			q.free = append(q.free, buf)
		}
	}
	q.ready = q.ready[:0]
	q.discardPending()
}
