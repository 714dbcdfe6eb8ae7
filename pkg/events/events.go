// Package events provides the in-process publish/subscribe channel that
// carries run updates to live dashboard subscribers. Events are transient:
// nothing is persisted or replayed, and publishes are dropped when no
// subscriber is keeping up.
package events

import "sync"

// Event types emitted by the reconciliation engine.
const (
	TypeRunUpserted = "run_upserted"
)

// Event is one domain event pushed to live subscribers.
type Event struct {
	Type         string `json:"type"`
	RunID        uint   `json:"id"`
	Status       string `json:"status"`
	Transition   string `json:"transition,omitempty"`
	Provider     string `json:"provider,omitempty"`
	PipelineName string `json:"pipeline_name,omitempty"`
	BuildNumber  *int   `json:"build_number,omitempty"`
}

// Publisher is the sink side handed to the reconciliation engine.
type Publisher interface {
	Publish(Event)
}

// Queue is a single-consumer event queue. Publish never blocks: when the
// buffer is full (no consumer attached, or a slow one) the event is dropped.
type Queue struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewQueue creates a queue buffering up to size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{ch: make(chan Event, size)}
}

// Publish enqueues an event, dropping it if the buffer is full or the queue
// is closed.
func (q *Queue) Publish(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- ev:
	default:
	}
}

// Events exposes the consumer side of the queue.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Close stops the queue; pending events remain readable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
