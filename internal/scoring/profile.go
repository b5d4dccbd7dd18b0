// Package scoring provides the incremental taste profile built from swipe events.
package scoring

import (
	"math"
	"sort"

	"github.com/thebtf/tastetrainer/pkg/models"
)

// Epsilon is the magnitude below which accumulated values snap to zero.
const Epsilon = 1e-4

// Config holds the tunable parameters of insight ranking.
type Config struct {
	// MinimumExposure is the exposure a feature needs before it is reported.
	MinimumExposure float64 `koanf:"minimum_exposure" validate:"gte=0"`
	// InsightThreshold is the normalized score noise floor.
	InsightThreshold float64 `koanf:"insight_threshold" validate:"gte=0,lt=1"`
	// ConfidenceSaturation is the exposure at which confidence reaches 1.
	ConfidenceSaturation float64 `koanf:"confidence_saturation" validate:"gt=0"`
}

// DefaultConfig returns the default ranking parameters.
func DefaultConfig() Config {
	return Config{
		MinimumExposure:      0.7,
		InsightThreshold:     0.12,
		ConfidenceSaturation: 4,
	}
}

// Profile accumulates per-feature preference and exposure.
//
// Profile is not safe for concurrent use; the trainer serializes access.
type Profile struct {
	ScoreByFeature    map[models.FeatureID]float64 `json:"score_by_feature"`
	ExposureByFeature map[models.FeatureID]float64 `json:"exposure_by_feature"`
	TotalSwipes       int                          `json:"total_swipes"`
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{
		ScoreByFeature:    make(map[models.FeatureID]float64),
		ExposureByFeature: make(map[models.FeatureID]float64),
	}
}

// Apply folds a swipe event into the profile.
func (p *Profile) Apply(event models.SwipeEvent) {
	p.update(event, 1)
	p.TotalSwipes++
}

// Revert undoes a prior Apply of the same event.
func (p *Profile) Revert(event models.SwipeEvent) {
	p.update(event, -1)
	p.TotalSwipes = max(0, p.TotalSwipes-1)
}

func (p *Profile) update(event models.SwipeEvent, sign float64) {
	p.ensure()
	weight := event.Action.Weight()
	for id, signal := range event.Dish.Signals {
		p.ScoreByFeature[id] = snap(p.ScoreByFeature[id] + sign*weight*signal)
		p.ExposureByFeature[id] = snap(math.Max(0, p.ExposureByFeature[id]+sign*math.Abs(signal)))
		if p.ScoreByFeature[id] == 0 {
			delete(p.ScoreByFeature, id)
		}
		if p.ExposureByFeature[id] == 0 {
			delete(p.ExposureByFeature, id)
		}
	}
}

func (p *Profile) ensure() {
	if p.ScoreByFeature == nil {
		p.ScoreByFeature = make(map[models.FeatureID]float64)
	}
	if p.ExposureByFeature == nil {
		p.ExposureByFeature = make(map[models.FeatureID]float64)
	}
}

func snap(v float64) float64 {
	if math.Abs(v) < Epsilon {
		return 0
	}
	return v
}

// Score returns the raw accumulated score of a feature.
func (p *Profile) Score(id models.FeatureID) float64 {
	return p.ScoreByFeature[id]
}

// Exposure returns the accumulated exposure of a feature.
func (p *Profile) Exposure(id models.FeatureID) float64 {
	return p.ExposureByFeature[id]
}

// NormalizedScore returns score/exposure in [-1,1], or 0 without exposure.
func (p *Profile) NormalizedScore(id models.FeatureID) float64 {
	exposure := p.ExposureByFeature[id]
	if exposure <= 0 {
		return 0
	}
	return p.ScoreByFeature[id] / exposure
}

// Insights returns up to limit features whose normalized score clears the
// threshold in the requested direction, strongest first.
func (p *Profile) Insights(cfg Config, positive bool, limit int) []models.TasteInsight {
	if limit <= 0 {
		return nil
	}

	var out []models.TasteInsight
	for _, f := range models.Features {
		exposure := p.ExposureByFeature[f.ID]
		if exposure < cfg.MinimumExposure || exposure <= 0 {
			continue
		}
		score := p.NormalizedScore(f.ID)
		if positive && score <= cfg.InsightThreshold {
			continue
		}
		if !positive && score >= -cfg.InsightThreshold {
			continue
		}
		out = append(out, models.TasteInsight{
			Feature:    f,
			Score:      score,
			Confidence: math.Min(1, exposure/cfg.ConfidenceSaturation),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if positive {
			return out[i].Score > out[j].Score
		}
		return out[i].Score < out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Coverage counts features with a non-zero normalized score.
func (p *Profile) Coverage() int {
	n := 0
	for id := range p.ExposureByFeature {
		if p.NormalizedScore(id) != 0 {
			n++
		}
	}
	return n
}

// FeatureScores returns every exposed feature's normalized score in catalog order.
func (p *Profile) FeatureScores() []models.FeatureScore {
	ids := make([]models.FeatureID, 0, len(p.ExposureByFeature))
	for id := range p.ExposureByFeature {
		ids = append(ids, id)
	}
	models.SortFeatureIDs(ids)
	out := make([]models.FeatureScore, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.FeatureScore{Feature: string(id), Score: p.NormalizedScore(id)})
	}
	return out
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := &Profile{
		ScoreByFeature:    make(map[models.FeatureID]float64, len(p.ScoreByFeature)),
		ExposureByFeature: make(map[models.FeatureID]float64, len(p.ExposureByFeature)),
		TotalSwipes:       p.TotalSwipes,
	}
	for k, v := range p.ScoreByFeature {
		c.ScoreByFeature[k] = v
	}
	for k, v := range p.ExposureByFeature {
		c.ExposureByFeature[k] = v
	}
	return c
}
