package trainer

import "time"

// EventType names a state change.
type EventType string

const (
	EventBootstrapped      EventType = "bootstrapped"
	EventSwiped            EventType = "swiped"
	EventUndone            EventType = "undone"
	EventReset             EventType = "reset"
	EventDeckRefilled      EventType = "deck_refilled"
	EventDeckExhausted     EventType = "deck_exhausted"
	EventAnalysisStarted   EventType = "analysis_started"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"
)

// Event is a state change notification.
type Event struct {
	Type        EventType `json:"type"`
	Epoch       uint64    `json:"epoch"`
	TotalSwipes int       `json:"total_swipes"`
	DeckSize    int       `json:"deck_size"`
	Dish        string    `json:"dish,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// Subscribe registers fn for every event and returns a function that
// removes it. fn is called synchronously and must not block or call back
// into mutating Trainer methods.
func (t *Trainer) Subscribe(fn func(Event)) (unsubscribe func()) {
	t.subsMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subsMu.Unlock()

	return func() {
		t.subsMu.Lock()
		delete(t.subs, id)
		t.subsMu.Unlock()
	}
}

// emit notifies subscribers. It must not be called with mu held.
func (t *Trainer) emit(typ EventType, dish, message string) {
	t.mu.RLock()
	ev := Event{
		Type:        typ,
		Epoch:       t.epoch,
		TotalSwipes: t.profile.TotalSwipes,
		DeckSize:    t.deck.Len(),
		Dish:        dish,
		Message:     message,
		At:          t.now().UTC(),
	}
	t.mu.RUnlock()

	t.subsMu.Lock()
	fns := make([]func(Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
