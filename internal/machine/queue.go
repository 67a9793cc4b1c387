package machine

import (
	"sync"

	"github.com/roach88/rheo/internal/term"
)

// Injection is an externally provided channel message awaiting
// publication through the channel store.
type Injection struct {
	Channel string // external channel name, resolved against the run's external bindings
	Payload term.Value
}

// inbox is a thread-safe FIFO queue for external injections.
//
// The queue is unbounded so an external driver can enqueue freely without
// blocking. Thread-safety is provided for external callers (CLI, tests,
// embedding programs) while the Scheduler's Run loop drains it. The loop
// polls with TryDequeue between steps; it never blocks on the inbox, so a
// run quiesces as soon as no queued injection can enable a step.
type inbox struct {
	mu     sync.Mutex
	items  []Injection
	closed bool
}

func newInbox() *inbox {
	return &inbox{
		items: make([]Injection, 0, 16),
	}
}

// Enqueue adds an injection to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the inbox is closed.
func (q *inbox) Enqueue(in Injection) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, in)
	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Injection{}, false) if the queue is empty.
func (q *inbox) TryDequeue() (Injection, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Injection{}, false
	}

	in := q.items[0]

	// Nil out the slot so the payload can be collected.
	q.items[0] = Injection{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return in, true
}

// Len returns the current queue length.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more injections will arrive. Later Enqueue calls
// return false.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
