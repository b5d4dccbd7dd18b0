package trainer

import (
	"time"

	"github.com/thebtf/tastetrainer/internal/deck"
)

// Config controls deck sizing, history retention and analysis cadence.
type Config struct {
	InitialDeckSize      int           `koanf:"initial_deck_size" json:"initial_deck_size" validate:"gt=0"`
	RefillDeckSize       int           `koanf:"refill_deck_size" json:"refill_deck_size" validate:"gt=0"`
	MinDeckThreshold     int           `koanf:"min_deck_threshold" json:"min_deck_threshold" validate:"gte=0"`
	VisibleWindow        int           `koanf:"visible_window" json:"visible_window" validate:"gt=0"`
	MaxHistory           int           `koanf:"max_history" json:"max_history" validate:"gt=0"`
	AnalysisInterval     int           `koanf:"analysis_interval" json:"analysis_interval" validate:"gt=0"`
	MinSwipesForAnalysis int           `koanf:"min_swipes_for_analysis" json:"min_swipes_for_analysis" validate:"gte=0"`
	InsightLimit         int           `koanf:"insight_limit" json:"insight_limit" validate:"gt=0"`
	RecentEvents         int           `koanf:"recent_events" json:"recent_events" validate:"gt=0,lte=20"`
	RecentLikes          int           `koanf:"recent_likes" json:"recent_likes" validate:"gte=0"`
	AnalysisTimeout      time.Duration `koanf:"analysis_timeout" json:"analysis_timeout" validate:"gt=0"`
	FetchTimeout         time.Duration `koanf:"fetch_timeout" json:"fetch_timeout" validate:"gt=0"`
}

// DefaultConfig returns the default trainer configuration.
func DefaultConfig() Config {
	return Config{
		InitialDeckSize:      20,
		RefillDeckSize:       20,
		MinDeckThreshold:     6,
		VisibleWindow:        3,
		MaxHistory:           200,
		AnalysisInterval:     15,
		MinSwipesForAnalysis: 15,
		InsightLimit:         6,
		RecentEvents:         20,
		RecentLikes:          3,
		AnalysisTimeout:      90 * time.Second,
		FetchTimeout:         90 * time.Second,
	}
}

// DeckConfig returns the deck sizing part of the configuration.
func (c Config) DeckConfig() deck.Config {
	return deck.Config{
		MinThreshold:  c.MinDeckThreshold,
		VisibleWindow: c.VisibleWindow,
	}
}

// ShouldAutoAnalyze reports whether total swipes hit the analysis cadence.
func (c Config) ShouldAutoAnalyze(total int) bool {
	return total >= c.MinSwipesForAnalysis && total > 0 && total%c.AnalysisInterval == 0
}

// RemainingSwipes returns how many swipes are left before the next
// automatic analysis.
func (c Config) RemainingSwipes(total int) int {
	if total < c.MinSwipesForAnalysis {
		return c.MinSwipesForAnalysis - total
	}
	return c.AnalysisInterval - total%c.AnalysisInterval
}
