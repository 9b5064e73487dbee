package fulfillment

import (
	"sync"
	"time"

	"github.com/roach88/fulfil/internal/rules"
)

// EventType names what happened to an entity.
type EventType string

const (
	EventOrderCreated       EventType = "order_created"
	EventPaymentConfirmed   EventType = "payment_confirmed"
	EventPaymentFailed      EventType = "payment_failed"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventStockChanged       EventType = "stock_changed"
)

// Event asks the service to evaluate the rule bucket of one entity.
type Event struct {
	Type       EventType
	EntityKind rules.Kind
	EntityID   string
	OccurredAt time.Time
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that request paths never block on rule
// evaluation. Any goroutine may enqueue; the service's Run loop is the only
// consumer.
//
// The signal channel lets Run wait with a context instead of blocking on
// the mutex.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	e, ok, _ := q.Next()
	return e, ok
}

// Next removes the front event without blocking. When the queue is empty,
// closed reports whether Close has been called; both are read under the
// same lock, so an empty closed queue stays empty.
func (q *eventQueue) Next() (e Event, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false, q.closed
	}
	e = q.events[0]
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true, q.closed
}

// Wait returns a channel that signals when events may be available. The
// channel is closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops the queue from accepting events and wakes the consumer.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
