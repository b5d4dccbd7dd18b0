// Package analysis turns aggregated taste insights into a natural-language
// analysis through a remote service.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/thebtf/tastetrainer/internal/backend"
	"github.com/thebtf/tastetrainer/pkg/models"
)

// Limits applied to the payload sent to analyzers.
const (
	MaxRecentEvents   = 20
	MaxEventFeatures  = 5
	MaxSummaryRunes   = 140
	MaxAdviceRunes    = 120
	maxPromptEvents   = 18
	maxPromptFeatures = 6
)

// ErrNotConfigured is returned by the disabled analyzer.
var ErrNotConfigured = errors.New("analysis service not configured")

// Request is the aggregated payload an analyzer works from.
type Request struct {
	TotalSwipes  int                   `json:"total_swipes"`
	TopPositive  []models.FeatureScore `json:"top_positive"`
	TopNegative  []models.FeatureScore `json:"top_negative"`
	RecentEvents []models.RecentEvent  `json:"recent_events"`
}

// Analyzer produces a taste analysis. Implementations return *Error on failure.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (models.TasteAnalysisResult, error)
}

// Error is the single error type surfaced by analyzers.
type Error struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s analysis failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s analysis failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapError converts any error into an *Error for provider.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	out := &Error{Provider: provider, Err: err}
	var se *backend.StatusError
	if errors.As(err, &se) {
		out.StatusCode = se.StatusCode
	}
	return out
}

// Disabled is an Analyzer that always fails with ErrNotConfigured.
type Disabled struct{}

// Analyze implements Analyzer.
func (Disabled) Analyze(context.Context, Request) (models.TasteAnalysisResult, error) {
	return models.TasteAnalysisResult{}, &Error{Provider: "none", Err: ErrNotConfigured}
}

// RecentEventsFrom summarizes up to limit swipe events, most recent first.
// Each event keeps its strongest MaxEventFeatures features.
func RecentEventsFrom(events []models.SwipeEvent, limit int) []models.RecentEvent {
	n := min(len(events), max(limit, 0))
	out := make([]models.RecentEvent, 0, n)
	for _, ev := range events[:n] {
		ids := ev.Dish.SortedFeatures()
		if len(ids) > MaxEventFeatures {
			ids = ids[:MaxEventFeatures]
		}
		features := make([]string, 0, len(ids))
		for _, id := range ids {
			features = append(features, string(id))
		}
		out = append(out, models.RecentEvent{
			DishName: ev.Dish.Name,
			Action:   string(ev.Action),
			Features: features,
		})
	}
	return out
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
