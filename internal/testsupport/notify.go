package testsupport

import (
	"context"
	"sync"

	"ticketless/internal/notifications"
)

// NotifyRecorder captures published job events.
type NotifyRecorder struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *NotifyRecorder) Publish(_ context.Context, event notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *NotifyRecorder) Close() error { return nil }

// Events returns a copy of every event published so far.
func (r *NotifyRecorder) Events() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

// Statuses returns the status of each published event in order.
func (r *NotifyRecorder) Statuses() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, event := range events {
		out[i] = event.Status
	}
	return out
}
