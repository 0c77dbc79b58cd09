package trellis

import (
	"container/heap"
	"sync"
	"time"
)

// retryEntry is one outstanding reliable fragment awaiting ACK: the
// header fields needed to resend it, the buffer holding the already
// encoded datagram, and the time it next comes due.
type retryEntry struct {
	due        time.Time
	sequenceID SequenceID
	channelID  uint8
	fragmentID uint8
	buf        SharedBuffer
	length     int
	index      int // maintained by container/heap
}

// retryHeap is the container/heap.Interface implementation backing
// retryQueue. No priority-queue library appears anywhere in the
// retrieved corpus, so container/heap is the grounded choice for the
// min-heap spec.md's retry queue calls for; see DESIGN.md.
type retryHeap []*retryEntry

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *retryHeap) Push(x interface{}) {
	e := x.(*retryEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// retryQueue is a time-ordered min-heap of outstanding outgoing
// fragments, grounded on original_source/include/trellis/retry_queue.hpp.
// resend is invoked with the queue's lock released and is responsible
// for writing the already encoded entry back onto the wire. Owner
// liveness comes from the alive callback the owning connection
// supplies: fire checks it before touching the heap, mirroring the
// reference's weak_ptr-guarded firing.
type retryQueue struct {
	mu      sync.Mutex
	entries retryHeap
	timer   *time.Timer
	resend  func(*retryEntry)
	alive   func() bool
}

func newRetryQueue(alive func() bool, resend func(*retryEntry)) *retryQueue {
	return &retryQueue{alive: alive, resend: resend}
}

// push adds an entry due RetryInterval from now and rearms the timer
// for the earliest due entry.
func (q *retryQueue) push(e *retryEntry) {
	q.mu.Lock()
	e.due = time.Now().Add(RetryInterval)
	heap.Push(&q.entries, e)
	q.rearmLocked()
	q.mu.Unlock()
}

// removeOneIf removes the first entry matching pred, if any.
func (q *retryQueue) removeOneIf(pred func(*retryEntry) bool) {
	q.mu.Lock()
	for i, e := range q.entries {
		if pred(e) {
			heap.Remove(&q.entries, i)
			break
		}
	}
	q.rearmLocked()
	q.mu.Unlock()
}

// removeAllIf removes every entry matching pred.
func (q *retryQueue) removeAllIf(pred func(*retryEntry) bool) {
	q.mu.Lock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if pred(e) {
			continue
		}
		e.index = len(kept)
		kept = append(kept, e)
	}
	q.entries = kept
	heap.Init(&q.entries)
	q.rearmLocked()
	q.mu.Unlock()
}

func (q *retryQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// rearmLocked must be called with mu held. It cancels any pending timer
// and, if entries remain, arms a new one for the earliest due time.
func (q *retryQueue) rearmLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if len(q.entries) == 0 {
		return
	}
	delay := time.Until(q.entries[0].due)
	if delay < 0 {
		delay = 0
	}
	q.timer = time.AfterFunc(delay, q.fire)
}

// fire pops the minimum, reinserts it with a fresh due time, and
// invokes resend outside the lock. It re-checks emptiness and owner
// liveness first since a cancellation can race a queued firing.
func (q *retryQueue) fire() {
	if !q.alive() {
		return
	}
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	e := heap.Pop(&q.entries).(*retryEntry)
	e.due = time.Now().Add(RetryInterval)
	heap.Push(&q.entries, e)
	q.rearmLocked()
	q.mu.Unlock()

	q.resend(e)
}

// stop cancels the timer and drops every entry, releasing their
// buffers. Called when the owning connection dies.
func (q *retryQueue) stop() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()

	for _, e := range entries {
		e.buf.Release()
	}
}
