// Package history keeps the bounded log of applied swipe events.
package history

import (
	"errors"

	"github.com/thebtf/tastetrainer/pkg/models"
)

// DefaultMaxEvents is the number of events retained for undo.
const DefaultMaxEvents = 200

// ErrEmpty is returned by UndoLast when there is nothing to undo.
var ErrEmpty = errors.New("history is empty")

// History is a most-recent-first log of swipe events.
// Events beyond the bound are dropped silently.
type History struct {
	events []models.SwipeEvent
	max    int
}

// New creates an empty history retaining at most limit events.
// A non-positive limit uses DefaultMaxEvents.
func New(limit int) *History {
	if limit <= 0 {
		limit = DefaultMaxEvents
	}
	return &History{max: limit}
}

// FromEvents restores a history from a most-recent-first slice.
func FromEvents(events []models.SwipeEvent, limit int) *History {
	h := New(limit)
	n := min(len(events), h.max)
	h.events = append(make([]models.SwipeEvent, 0, n), events[:n]...)
	return h
}

// Record inserts an event at the head.
func (h *History) Record(event models.SwipeEvent) {
	h.events = append(h.events, models.SwipeEvent{})
	copy(h.events[1:], h.events)
	h.events[0] = event
	if len(h.events) > h.max {
		h.events = h.events[:h.max]
	}
}

// UndoLast removes and returns the head event.
func (h *History) UndoLast() (models.SwipeEvent, error) {
	if len(h.events) == 0 {
		return models.SwipeEvent{}, ErrEmpty
	}
	head := h.events[0]
	h.events = h.events[1:]
	return head, nil
}

// Len returns the number of retained events.
func (h *History) Len() int {
	return len(h.events)
}

// Max returns the retention bound.
func (h *History) Max() int {
	return h.max
}

// Events returns a copy of the events, most recent first.
func (h *History) Events() []models.SwipeEvent {
	return append([]models.SwipeEvent(nil), h.events...)
}

// Recent returns up to n most recent events.
func (h *History) Recent(n int) []models.SwipeEvent {
	n = max(0, min(n, len(h.events)))
	return append([]models.SwipeEvent(nil), h.events[:n]...)
}

// RecentLikes returns the names of up to n most recently liked dishes.
func (h *History) RecentLikes(n int) []string {
	var out []string
	for _, e := range h.events {
		if len(out) >= n {
			break
		}
		if e.Action == models.ActionLike {
			out = append(out, e.Dish.Name)
		}
	}
	return out
}

// Names returns the set of dish names present in the history.
func (h *History) Names() map[string]struct{} {
	names := make(map[string]struct{}, len(h.events))
	for _, e := range h.events {
		names[e.Dish.Name] = struct{}{}
	}
	return names
}

// Clear drops every event.
func (h *History) Clear() {
	h.events = nil
}
