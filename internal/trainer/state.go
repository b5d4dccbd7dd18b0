package trainer

import (
	"fmt"

	"github.com/thebtf/tastetrainer/internal/scoring"
	"github.com/thebtf/tastetrainer/pkg/models"
)

// AnalysisView is the analysis panel text derived from the trainer state.
type AnalysisView struct {
	Headline string `json:"headline"`
	Avoid    string `json:"avoid"`
	Strategy string `json:"strategy"`
}

// State is a point-in-time read model of the trainer.
type State struct {
	Status                     Status                      `json:"status"`
	Epoch                      uint64                      `json:"epoch"`
	TotalSwipes                int                         `json:"total_swipes"`
	CurrentDish                *models.DishCandidate       `json:"current_dish,omitempty"`
	VisibleDeck                []models.DishCandidate      `json:"visible_deck"`
	DeckSize                   int                         `json:"deck_size"`
	DeckStatus                 string                      `json:"deck_status,omitempty"`
	DeckExhausted              bool                        `json:"deck_exhausted"`
	PositiveInsights           []models.TasteInsight       `json:"positive_insights"`
	NegativeInsights           []models.TasteInsight       `json:"negative_insights"`
	RecentLikes                []string                    `json:"recent_likes"`
	SignalCoverage             int                         `json:"signal_coverage"`
	CanUndo                    bool                        `json:"can_undo"`
	CanRefreshAnalysis         bool                        `json:"can_refresh_analysis"`
	RemainingSwipesForAnalysis int                         `json:"remaining_swipes_for_analysis"`
	LatestAnalysis             *models.TasteAnalysisResult `json:"latest_analysis,omitempty"`
	AnalysisError              string                      `json:"analysis_error,omitempty"`
	Analysis                   AnalysisView                `json:"analysis"`
}

// State returns the current read model.
func (t *Trainer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := t.profile.TotalSwipes
	enough := total >= t.cfg.MinSwipesForAnalysis
	s := State{
		Status:                     t.statusLocked(),
		Epoch:                      t.epoch,
		TotalSwipes:                total,
		VisibleDeck:                t.deck.Visible(),
		DeckSize:                   t.deck.Len(),
		DeckStatus:                 t.deck.Status(),
		DeckExhausted:              t.deck.Exhausted(),
		PositiveInsights:           t.profile.Insights(t.scoringCfg, true, t.cfg.InsightLimit),
		NegativeInsights:           t.profile.Insights(t.scoringCfg, false, t.cfg.InsightLimit),
		RecentLikes:                nonNilStrings(t.history.RecentLikes(t.cfg.RecentLikes)),
		SignalCoverage:             t.profile.Coverage(),
		CanUndo:                    t.history.Len() > 0,
		CanRefreshAnalysis:         enough && !t.analyzing,
		RemainingSwipesForAnalysis: t.cfg.RemainingSwipes(total),
		AnalysisError:              t.analysisErr,
	}
	if front, ok := t.deck.Front(); ok {
		s.CurrentDish = &front
	}
	if t.latest != nil {
		latest := *t.latest
		s.LatestAnalysis = &latest
	}
	s.Analysis = t.analysisViewLocked(enough)
	return s
}

func (t *Trainer) statusLocked() Status {
	switch {
	case !t.bootstrapped:
		return StatusBootstrapping
	case t.analyzing:
		return StatusAnalyzing
	default:
		return StatusReady
	}
}

func (t *Trainer) analysisViewLocked(enough bool) AnalysisView {
	switch {
	case t.analyzing:
		return AnalysisView{
			Headline: "Analyzing your taste...",
			Avoid:    "Generating avoid advice.",
			Strategy: "Generating an ordering strategy.",
		}
	case t.latest != nil:
		return AnalysisView{Headline: t.latest.Summary, Avoid: t.latest.Avoid, Strategy: t.latest.Strategy}
	case !enough:
		remaining := max(0, t.cfg.MinSwipesForAnalysis-t.profile.TotalSwipes)
		return AnalysisView{
			Headline: fmt.Sprintf("Keep swiping so we can learn your taste (%d more).", remaining),
			Avoid:    "Avoid advice appears after more swipes.",
			Strategy: "An ordering strategy appears after more swipes.",
		}
	case t.analysisErr != "":
		return AnalysisView{
			Headline: "Analysis did not finish. Refresh to retry.",
			Avoid:    "Refresh to generate avoid advice.",
			Strategy: "Refresh to generate an ordering strategy.",
		}
	default:
		return AnalysisView{
			Headline: "Ready for analysis. Refresh to generate a taste summary.",
			Avoid:    "Refresh to generate avoid advice.",
			Strategy: "Refresh to generate an ordering strategy.",
		}
	}
}

// Insights returns the ranked positive or negative insights.
func (t *Trainer) Insights(positive bool, limit int) []models.TasteInsight {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.profile.Insights(t.scoringCfg, positive, limit)
}

// TasteContext returns the compact preference payload for menu recommendation.
func (t *Trainer) TasteContext() models.TasteContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return models.TasteContext{
		TotalSwipes: t.profile.TotalSwipes,
		TopPositive: models.FeatureScores(t.profile.Insights(t.scoringCfg, true, t.cfg.InsightLimit)),
		TopNegative: models.FeatureScores(t.profile.Insights(t.scoringCfg, false, t.cfg.InsightLimit)),
		RecentLikes: nonNilStrings(t.history.RecentLikes(t.cfg.RecentLikes)),
	}
}

// History returns up to limit events, most recent first.
func (t *Trainer) History(limit int) []models.SwipeEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Recent(limit)
}

// Profile returns a copy of the taste profile.
func (t *Trainer) Profile() *scoring.Profile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.profile.Clone()
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
