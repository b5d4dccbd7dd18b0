// Package candidates provides dish candidate sources for the deck.
package candidates

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/pkg/models"
)

// ErrMalformedCandidate is returned when a raw dish fails ingestion.
var ErrMalformedCandidate = models.ErrMalformedDish

// Hints carry the current taste profile to sources that can personalize.
type Hints struct {
	FeatureScores []models.FeatureScore
	TopPositive   []models.FeatureScore
	TopNegative   []models.FeatureScore
	RecentLikes   []string
}

// HintedSource is a source that accepts taste hints alongside a fetch.
type HintedSource interface {
	FetchWithHints(ctx context.Context, count int, avoid map[string]struct{}, hints Hints) ([]models.DishCandidate, error)
}

// RawDish is a dish as supplied by an external source, before validation.
type RawDish struct {
	Name         string               `json:"name" yaml:"name" validate:"required,max=120"`
	Subtitle     string               `json:"subtitle" yaml:"subtitle" validate:"max=240"`
	Signals      map[string]float64   `json:"signals" yaml:"signals"`
	Tags         []string             `json:"-" yaml:"tags"`
	CategoryTags *models.CategoryTags `json:"category_tags,omitempty" yaml:"category_tags,omitempty"`
	ImageRef     string               `json:"image_data_url,omitempty" yaml:"image_ref,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Sanitize validates a raw dish and converts it into a candidate.
// Ordered tags expand to signals when no explicit signals are given.
func Sanitize(raw RawDish) (models.DishCandidate, error) {
	if err := getValidator().Struct(&raw); err != nil {
		return models.DishCandidate{}, errors.Join(ErrMalformedCandidate, err)
	}

	signals := make(map[models.FeatureID]float64, len(raw.Signals))
	if len(raw.Signals) > 0 {
		for k, v := range raw.Signals {
			signals[models.FeatureID(k)] = v
		}
	} else {
		signals = SignalsFromTags(raw.Tags)
	}

	dish, err := models.NewDishCandidate(raw.Name, raw.Subtitle, signals, raw.CategoryTags, raw.ImageRef)
	if err != nil {
		return models.DishCandidate{}, fmt.Errorf("sanitize %q: %w", raw.Name, err)
	}
	return dish, nil
}

// SanitizeAll converts every valid raw dish, logging and skipping the rest.
func SanitizeAll(raws []RawDish) []models.DishCandidate {
	out := make([]models.DishCandidate, 0, len(raws))
	for _, raw := range raws {
		dish, err := Sanitize(raw)
		if err != nil {
			log.Debug().Err(err).Str("dish", raw.Name).Msg("Rejected candidate")
			continue
		}
		out = append(out, dish)
	}
	return out
}

// SignalsFromTags maps ordered feature tags to signal strengths.
// The i-th tag weighs max(0.5, 0.92 - 0.1*i). Fewer than two distinct valid
// tags are padded with umami and light.
func SignalsFromTags(tags []string) map[models.FeatureID]float64 {
	signals := make(map[models.FeatureID]float64, len(tags))
	for i, tag := range tags {
		id := models.FeatureID(tag)
		if !id.IsValid() {
			continue
		}
		weight := max(0.5, 0.92-0.1*float64(i))
		signals[id] = max(signals[id], weight)
	}
	if len(signals) < models.MinSignals {
		signals[models.FeatureUmami] = 0.65
		signals[models.FeatureLight] = 0.55
	}
	return signals
}
