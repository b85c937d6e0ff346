package engine

import (
	"sync"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/identity"
)

// eventKind distinguishes between event kinds.
type eventKind int

const (
	// evStart loads the initial cart. Always the first event processed.
	evStart eventKind = iota + 1
	evAdd
	evUpdate
	evRemove
	evClear
	evSync
	evIdentity
	evFlush
	// evCompletion carries the outcome of a remote call back to the loop.
	evCompletion
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "start"
	case evAdd:
		return "add"
	case evUpdate:
		return "update"
	case evRemove:
		return "remove"
	case evClear:
		return "clear"
	case evSync:
		return "sync"
	case evIdentity:
		return "identity"
	case evFlush:
		return "flush"
	case evCompletion:
		return "completion"
	}
	return "unknown"
}

// event is a unit of work for the controller loop.
//
// Command events carry a done channel that receives nil once the command's
// optimistic dispatch is applied (for evFlush: once nothing is in flight).
type event struct {
	kind eventKind

	record   cart.Record
	itemID   string
	quantity int
	identity identity.Identity

	completion *completion
	done       chan error
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so remote goroutines can always post completions
// without blocking on a busy loop.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]

	// Clear the slot so the backing array does not retain records and
	// completions.
	q.events[0] = event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
