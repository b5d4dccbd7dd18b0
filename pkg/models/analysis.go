package models

import "time"

// TasteAnalysisResult is the last natural-language analysis returned by an analyzer.
type TasteAnalysisResult struct {
	Summary   string    `json:"summary"`
	Avoid     string    `json:"avoid"`
	Strategy  string    `json:"strategy"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RecentEvent is a swipe summarized for an analyzer.
type RecentEvent struct {
	DishName string   `json:"dish_name"`
	Action   string   `json:"action"`
	Features []string `json:"features"`
}

// TasteContext is the compact preference payload handed to downstream
// recommendation services.
type TasteContext struct {
	TotalSwipes int            `json:"total_swipes"`
	TopPositive []FeatureScore `json:"top_positive"`
	TopNegative []FeatureScore `json:"top_negative"`
	RecentLikes []string       `json:"recent_likes"`
}
