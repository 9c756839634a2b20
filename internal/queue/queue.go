// Package queue provides the bounded in-process event queue that sits
// between producers (collectors, detectors) and the single correlator
// consumer.
package queue

import (
	"context"
	"time"

	"github.com/opensecagent/agent/internal/model"
)

const dequeueTimeout = 5 * time.Second

// EventQueue is a bounded, single-consumer FIFO. Enqueue never blocks past
// the queue's capacity is reached mid-shutdown; Dequeue unblocks after
// dequeueTimeout so shutdown stays responsive even when idle.
type EventQueue struct {
	ch chan model.Event
}

// New creates an EventQueue with the given capacity.
func New(capacity int) *EventQueue {
	return &EventQueue{ch: make(chan model.Event, capacity)}
}

// Enqueue adds an event to the queue, blocking if it is full, but
// unwinding cleanly if ctx is canceled first.
func (q *EventQueue) Enqueue(ctx context.Context, ev model.Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue waits up to dequeueTimeout for an event. It returns ok=false on
// timeout (not an error) so the caller's poll loop can check for
// cancellation and retry.
func (q *EventQueue) Dequeue(ctx context.Context) (model.Event, bool) {
	timer := time.NewTimer(dequeueTimeout)
	defer timer.Stop()
	select {
	case ev := <-q.ch:
		return ev, true
	case <-timer.C:
		return model.Event{}, false
	case <-ctx.Done():
		return model.Event{}, false
	}
}

// Len reports the number of events currently buffered.
func (q *EventQueue) Len() int {
	return len(q.ch)
}
