package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/internal/backend"
	"github.com/thebtf/tastetrainer/pkg/models"
)

type analyzeResponse struct {
	Summary  string `json:"summary"`
	Avoid    string `json:"avoid"`
	Strategy string `json:"strategy"`
	Source   string `json:"source"`
}

// Remote calls the backend analyze endpoint.
type Remote struct {
	client *backend.Client
	now    func() time.Time
}

// NewRemote creates a backend analyzer.
func NewRemote(client *backend.Client) *Remote {
	return &Remote{client: client, now: time.Now}
}

// Analyze implements Analyzer.
func (r *Remote) Analyze(ctx context.Context, req Request) (models.TasteAnalysisResult, error) {
	req.TopPositive = nonNilScores(req.TopPositive)
	req.TopNegative = nonNilScores(req.TopNegative)
	if len(req.RecentEvents) > MaxRecentEvents {
		req.RecentEvents = req.RecentEvents[:MaxRecentEvents]
	}
	if req.RecentEvents == nil {
		req.RecentEvents = []models.RecentEvent{}
	}

	var resp analyzeResponse
	if err := r.client.PostJSON(ctx, "/v1/taste/analyze", req, &resp); err != nil {
		return models.TasteAnalysisResult{}, wrapError("remote", err)
	}

	log.Debug().Str("source", resp.Source).Int("total_swipes", req.TotalSwipes).Msg("Remote analysis received")
	return models.TasteAnalysisResult{
		Summary:   resp.Summary,
		Avoid:     resp.Avoid,
		Strategy:  resp.Strategy,
		Source:    resp.Source,
		CreatedAt: r.now().UTC(),
	}, nil
}

func nonNilScores(s []models.FeatureScore) []models.FeatureScore {
	if s == nil {
		return []models.FeatureScore{}
	}
	return s
}
