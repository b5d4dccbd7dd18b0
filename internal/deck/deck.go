// Package deck manages the queue of upcoming dish candidates.
package deck

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/thebtf/tastetrainer/internal/logging"
	"github.com/thebtf/tastetrainer/pkg/models"
)

// Status messages surfaced to callers.
const (
	StatusPreparing = "Preparing dishes..."
	StatusExhausted = "No more dishes left. Reset to start over."
)

// Source supplies dish candidates. Returning fewer than count, including
// zero, signals partial or full exhaustion and is not an error.
type Source interface {
	Fetch(ctx context.Context, count int, avoid map[string]struct{}) ([]models.DishCandidate, error)
}

// FetchFunc fetches up to count candidates whose names are not in avoid.
// Source.Fetch satisfies it.
type FetchFunc func(ctx context.Context, count int, avoid map[string]struct{}) ([]models.DishCandidate, error)

// Config controls when the deck refills and how much of it is visible.
type Config struct {
	MinThreshold  int
	VisibleWindow int
}

// DefaultConfig returns the default deck sizing.
func DefaultConfig() Config {
	return Config{
		MinThreshold:  6,
		VisibleWindow: 3,
	}
}

// RefillResult describes a refill attempt. Requested is zero when the deck
// already held enough cards and nothing was fetched.
type RefillResult struct {
	Requested int
	Added     int
	Avoided   int
	Exhausted bool
}

// Manager holds the ordered deck; the front card is the one presented.
//
// Manager is not safe for concurrent use.
type Manager struct {
	cfg       Config
	cards     []models.DishCandidate
	exhausted bool
	lastError string
	logger    zerolog.Logger
}

// NewManager creates an empty deck.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, logger: logging.Component("deck")}
}

// Config returns the sizing configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Len returns the number of queued cards.
func (m *Manager) Len() int {
	return len(m.cards)
}

// Cards returns a copy of the full queue.
func (m *Manager) Cards() []models.DishCandidate {
	return append([]models.DishCandidate(nil), m.cards...)
}

// Visible returns the presentation window at the front of the queue.
func (m *Manager) Visible() []models.DishCandidate {
	n := min(m.cfg.VisibleWindow, len(m.cards))
	return append([]models.DishCandidate(nil), m.cards[:n]...)
}

// Front returns the current card.
func (m *Manager) Front() (models.DishCandidate, bool) {
	if len(m.cards) == 0 {
		return models.DishCandidate{}, false
	}
	return m.cards[0], true
}

// PopFront removes and returns the current card.
func (m *Manager) PopFront() (models.DishCandidate, bool) {
	front, ok := m.Front()
	if ok {
		m.cards = m.cards[1:]
	}
	return front, ok
}

// PushFront puts a card back at the front of the queue.
func (m *Manager) PushFront(dish models.DishCandidate) {
	m.cards = append([]models.DishCandidate{dish}, m.cards...)
}

// Replace swaps the whole queue and clears the status.
func (m *Manager) Replace(cards []models.DishCandidate) {
	m.cards = append([]models.DishCandidate(nil), cards...)
	m.exhausted = false
	m.lastError = ""
}

// NeedsRefill reports whether the queue dropped below the minimum threshold.
func (m *Manager) NeedsRefill() bool {
	return len(m.cards) < m.cfg.MinThreshold
}

// Shortfall returns how many cards are missing to reach target.
func (m *Manager) Shortfall(target int) int {
	return max(0, target-len(m.cards))
}

// AvoidSet returns the names currently queued merged with seen.
func (m *Manager) AvoidSet(seen map[string]struct{}) map[string]struct{} {
	avoid := make(map[string]struct{}, len(m.cards)+len(seen))
	for name := range seen {
		avoid[name] = struct{}{}
	}
	for _, c := range m.cards {
		avoid[c.Name] = struct{}{}
	}
	return avoid
}

// Accept appends a fetched batch in arrival order, skipping names in avoid
// and duplicates within the batch. An empty result for a non-zero request
// marks the deck exhausted. Returns the number of cards appended.
func (m *Manager) Accept(batch []models.DishCandidate, requested int, avoid map[string]struct{}) int {
	added := 0
	seen := make(map[string]struct{}, len(batch))
	for _, dish := range batch {
		if added >= requested {
			break
		}
		if _, ok := avoid[dish.Name]; ok {
			continue
		}
		if _, ok := seen[dish.Name]; ok {
			continue
		}
		seen[dish.Name] = struct{}{}
		m.cards = append(m.cards, dish)
		added++
	}

	switch {
	case requested > 0 && added == 0:
		m.exhausted = true
	case added > 0:
		m.exhausted = false
		m.lastError = ""
	}
	return added
}

// Fail records a fetch failure message. A failed fetch with an empty deck
// is reported through Status.
func (m *Manager) Fail(err error) {
	m.lastError = err.Error()
}

// RefillIfNeeded tops the deck up to target, asking fetch for the missing
// cards while avoiding queued names and seen. A successful fetch that adds
// nothing marks the deck exhausted; a failed one is kept for Status.
//
// fetch may release a lock guarding the manager as long as nothing else
// mutates it until fetch returns.
func (m *Manager) RefillIfNeeded(ctx context.Context, fetch FetchFunc, target int, seen map[string]struct{}) (RefillResult, error) {
	need := m.Shortfall(target)
	if need == 0 {
		return RefillResult{}, nil
	}
	avoid := m.AvoidSet(seen)
	res := RefillResult{Requested: need, Avoided: len(avoid)}

	batch, err := fetch(ctx, need, avoid)
	if err != nil {
		m.Fail(err)
		return res, fmt.Errorf("fetch candidates: %w", err)
	}
	res.Added = m.Accept(batch, need, avoid)
	res.Exhausted = res.Added == 0
	if res.Exhausted {
		m.logger.Warn().Int("requested", need).Int("avoid", res.Avoided).Msg("Candidate source exhausted")
	}
	return res, nil
}

// Exhausted reports whether the last refill came back empty.
func (m *Manager) Exhausted() bool {
	return m.exhausted
}

// Status returns a human-readable deck status, or "" when cards are queued
// and nothing went wrong.
func (m *Manager) Status() string {
	switch {
	case m.exhausted:
		return StatusExhausted
	case m.lastError != "" && len(m.cards) == 0:
		return "Failed to load dishes: " + m.lastError
	case len(m.cards) == 0:
		return StatusPreparing
	default:
		return ""
	}
}

// Restore loads a persisted queue without touching the status.
func (m *Manager) Restore(cards []models.DishCandidate) {
	m.cards = append([]models.DishCandidate(nil), cards...)
}
