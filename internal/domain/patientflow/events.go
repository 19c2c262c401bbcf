package patientflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Notification pairs an applied transition with the patient record as it
// stood right after it.
type Notification struct {
	Event   TransitionEvent `json:"event"`
	Patient Patient         `json:"patient"`
}

// Publisher receives every applied transition. Publish is called outside the
// store lock; a failing publisher is logged and never rolls back the store.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, n Notification) error

func (f PublisherFunc) Publish(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// History keeps the per-patient status history in memory.
type History struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]TransitionEvent
}

func NewHistory() *History {
	return &History{events: make(map[uuid.UUID][]TransitionEvent)}
}

func (h *History) Publish(_ context.Context, n Notification) error {
	h.mu.Lock()
	h.events[n.Event.QueueID] = append(h.events[n.Event.QueueID], n.Event)
	h.mu.Unlock()
	return nil
}

// For returns the events recorded for id, oldest first.
func (h *History) For(id uuid.UUID) []TransitionEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]TransitionEvent(nil), h.events[id]...)
}
