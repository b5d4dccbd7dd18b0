package candidates

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/internal/backend"
	"github.com/thebtf/tastetrainer/pkg/models"
)

// The deck service accepts between 6 and 40 dishes per request.
const (
	minRemoteBatch = 6
	maxRemoteBatch = 40
)

type deckRequest struct {
	Count         int                   `json:"count"`
	FeatureScores map[string]float64    `json:"feature_scores"`
	TopPositive   []models.FeatureScore `json:"top_positive"`
	TopNegative   []models.FeatureScore `json:"top_negative"`
	RecentLikes   []string              `json:"recent_likes"`
	AvoidNames    []string              `json:"avoid_names"`
	Locale        string                `json:"locale"`
}

type deckResponse struct {
	Dishes []RawDish `json:"dishes"`
	Source string    `json:"source"`
}

// RemoteSource generates dishes through the backend deck endpoint.
type RemoteSource struct {
	client *backend.Client
	locale string
}

// NewRemoteSource creates a remote source.
func NewRemoteSource(client *backend.Client, locale string) *RemoteSource {
	if locale == "" {
		locale = "en-US"
	}
	return &RemoteSource{client: client, locale: locale}
}

// Fetch requests dishes without taste hints.
func (r *RemoteSource) Fetch(ctx context.Context, count int, avoid map[string]struct{}) ([]models.DishCandidate, error) {
	return r.FetchWithHints(ctx, count, avoid, Hints{})
}

// FetchWithHints requests up to count dishes personalized by hints.
// Invalid dishes in the response are dropped.
func (r *RemoteSource) FetchWithHints(ctx context.Context, count int, avoid map[string]struct{}, hints Hints) ([]models.DishCandidate, error) {
	if count <= 0 {
		return nil, nil
	}

	req := deckRequest{
		Count:         min(maxRemoteBatch, max(minRemoteBatch, count)),
		FeatureScores: make(map[string]float64, len(hints.FeatureScores)),
		TopPositive:   nonNil(hints.TopPositive),
		TopNegative:   nonNil(hints.TopNegative),
		RecentLikes:   nonNil(hints.RecentLikes),
		AvoidNames:    sortedNames(avoid),
		Locale:        r.locale,
	}
	for _, fs := range hints.FeatureScores {
		req.FeatureScores[fs.Feature] = fs.Score
	}

	var resp deckResponse
	if err := r.client.PostJSON(ctx, "/v1/taste/deck", req, &resp); err != nil {
		return nil, fmt.Errorf("fetch deck: %w", err)
	}

	dishes := SanitizeAll(resp.Dishes)
	out := make([]models.DishCandidate, 0, min(count, len(dishes)))
	for _, d := range dishes {
		if len(out) == count {
			break
		}
		if _, ok := avoid[d.Name]; ok {
			continue
		}
		out = append(out, d)
	}

	log.Debug().
		Str("source", resp.Source).
		Int("requested", count).
		Int("received", len(resp.Dishes)).
		Int("accepted", len(out)).
		Msg("Remote deck fetched")
	return out, nil
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
