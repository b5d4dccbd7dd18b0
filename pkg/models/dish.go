package models

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// MinSignals is the minimum number of valid feature signals a dish must carry.
const MinSignals = 2

// ErrMalformedDish is returned when a dish fails ingestion validation.
var ErrMalformedDish = errors.New("malformed dish candidate")

// CategoryTags are optional human-facing tags supplied by a candidate source.
type CategoryTags struct {
	Cuisine    []string `json:"cuisine,omitempty" yaml:"cuisine,omitempty"`
	Flavor     []string `json:"flavor,omitempty" yaml:"flavor,omitempty"`
	Ingredient []string `json:"ingredient,omitempty" yaml:"ingredient,omitempty"`
}

// All returns cuisine, flavor and ingredient tags de-duplicated in order.
func (c *CategoryTags) All() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{c.Cuisine, c.Flavor, c.Ingredient} {
		for _, tag := range group {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// IsEmpty reports whether no group carries a tag.
func (c *CategoryTags) IsEmpty() bool {
	return c == nil || (len(c.Cuisine) == 0 && len(c.Flavor) == 0 && len(c.Ingredient) == 0)
}

// DishCandidate is one dish offered to the user.
// Values are treated as immutable once created.
type DishCandidate struct {
	ID           uuid.UUID             `json:"id"`
	Name         string                `json:"name"`
	Subtitle     string                `json:"subtitle"`
	Signals      map[FeatureID]float64 `json:"signals"`
	CategoryTags *CategoryTags         `json:"category_tags,omitempty"`
	ImageRef     string                `json:"image_ref,omitempty"`
}

// NewDishCandidate validates raw candidate data and returns a dish with a fresh ID.
//
// Names are trimmed. Unknown feature ids and non-finite values are dropped,
// remaining values are clamped to [0,1]. Empty names and dishes with fewer than
// MinSignals valid signals are rejected with ErrMalformedDish.
func NewDishCandidate(name, subtitle string, signals map[FeatureID]float64, tags *CategoryTags, imageRef string) (DishCandidate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DishCandidate{}, errors.Join(ErrMalformedDish, errors.New("empty name"))
	}

	clean := make(map[FeatureID]float64, len(signals))
	for id, v := range signals {
		if !id.IsValid() || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		clean[id] = ClampSignal(v)
	}
	if len(clean) < MinSignals {
		return DishCandidate{}, errors.Join(ErrMalformedDish, errors.New("not enough signals for "+name))
	}

	return DishCandidate{
		ID:           uuid.New(),
		Name:         name,
		Subtitle:     strings.TrimSpace(subtitle),
		Signals:      clean,
		CategoryTags: normalizeTags(tags),
		ImageRef:     strings.TrimSpace(imageRef),
	}, nil
}

// ClampSignal bounds a signal strength to [0,1].
func ClampSignal(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func normalizeTags(tags *CategoryTags) *CategoryTags {
	if tags == nil {
		return nil
	}
	out := &CategoryTags{
		Cuisine:    trimTags(tags.Cuisine),
		Flavor:     trimTags(tags.Flavor),
		Ingredient: trimTags(tags.Ingredient),
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func trimTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// SortedFeatures returns the dish's feature ids ordered by signal strength,
// strongest first. Ties are broken by id.
func (d DishCandidate) SortedFeatures() []FeatureID {
	ids := make([]FeatureID, 0, len(d.Signals))
	for id := range d.Signals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := d.Signals[ids[i]], d.Signals[ids[j]]
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// TopTags returns the display names of the four strongest features.
func (d DishCandidate) TopTags() []string {
	ids := d.SortedFeatures()
	if len(ids) > 4 {
		ids = ids[:4]
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, FeatureFor(id).Name)
	}
	return out
}

var (
	displayFlavors  = []FeatureID{FeatureSweet, FeatureSpicy, FeatureSour, FeatureSalty, FeatureNumbing, FeatureUmami}
	displayProteins = []FeatureID{FeatureChicken, FeatureBeef, FeatureLamb, FeaturePork, FeatureDuck, FeatureSeafood, FeatureTofu}
)

// DisplayTags returns the tags shown on a card. Source supplied category tags
// win; otherwise tags are derived from the strongest signals.
func (d DishCandidate) DisplayTags() []string {
	if tags := d.CategoryTags.All(); len(tags) > 0 {
		return tags
	}

	var out []string
	var bestCuisine FeatureID
	best := 0.0
	for _, f := range FeaturesInGroup(GroupCuisine) {
		if v := d.Signals[f.ID]; v >= 0.5 && v > best {
			best, bestCuisine = v, f.ID
		}
	}
	if bestCuisine != "" {
		out = append(out, FeatureFor(bestCuisine).Name)
	}
	for _, id := range displayFlavors {
		if d.Signals[id] >= 0.55 {
			out = append(out, FeatureFor(id).Name)
		}
	}
	for _, id := range displayProteins {
		if d.Signals[id] >= 0.58 {
			out = append(out, FeatureFor(id).Name)
		}
	}
	if len(out) == 0 {
		out = append(out, FeatureFor(FeatureUmami).Name)
	}
	return out
}
