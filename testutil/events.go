package testutil

import (
	"context"
	"sync"

	"github.com/c360/postgraph/events"
)

// EventRecorder is an events.Publisher that keeps every event
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event

	// Err, when set, is returned from Publish and the event is dropped
	Err error
}

var _ events.Publisher = (*EventRecorder)(nil)

// Publish implements events.Publisher
func (r *EventRecorder) Publish(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns the recorded events
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}
