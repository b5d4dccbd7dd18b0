package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/tastetrainer/pkg/models"
)

// ProfileSuite is a test suite for Profile.
type ProfileSuite struct {
	suite.Suite
	profile *Profile
	cfg     Config
	dish    models.DishCandidate
	now     time.Time
}

func (s *ProfileSuite) SetupTest() {
	s.profile = NewProfile()
	s.cfg = DefaultConfig()
	s.dish = models.DishCandidate{
		Name:    "Twice-Cooked Pork",
		Signals: map[models.FeatureID]float64{models.FeatureSpicy: 0.8, models.FeaturePork: 0.6},
	}
	s.now = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
}

func TestProfileSuite(t *testing.T) {
	suite.Run(t, new(ProfileSuite))
}

func (s *ProfileSuite) event(dish models.DishCandidate, action models.SwipeAction) models.SwipeEvent {
	return models.NewSwipeEvent(dish, action, s.now)
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ProfileSuite) TestApply_GoodScenarios_SingleLike() {
	s.profile.Apply(s.event(s.dish, models.ActionLike))

	s.InDelta(0.8, s.profile.Score(models.FeatureSpicy), 1e-9)
	s.InDelta(0.8, s.profile.Exposure(models.FeatureSpicy), 1e-9)
	s.InDelta(0.6, s.profile.Score(models.FeaturePork), 1e-9)
	s.InDelta(0.6, s.profile.Exposure(models.FeaturePork), 1e-9)
	s.Equal(1, s.profile.TotalSwipes)
	s.InDelta(1.0, s.profile.NormalizedScore(models.FeatureSpicy), 1e-9)
}

func (s *ProfileSuite) TestApply_GoodScenarios_LikeThenDislikeCancels() {
	s.profile.Apply(s.event(s.dish, models.ActionLike))
	s.profile.Apply(s.event(s.dish, models.ActionDislike))

	s.InDelta(0.0, s.profile.Score(models.FeatureSpicy), 1e-9)
	s.InDelta(1.6, s.profile.Exposure(models.FeatureSpicy), 1e-9)
	s.Equal(2, s.profile.TotalSwipes)
	s.InDelta(0.0, s.profile.NormalizedScore(models.FeatureSpicy), 1e-9)

	for _, positive := range []bool{true, false} {
		for _, in := range s.profile.Insights(s.cfg, positive, 10) {
			s.NotEqual(models.FeatureSpicy, in.Feature.ID)
		}
	}
}

func (s *ProfileSuite) TestApply_GoodScenarios_NeutralWeighsPartially() {
	s.profile.Apply(s.event(s.dish, models.ActionNeutral))

	s.InDelta(-0.2, s.profile.Score(models.FeatureSpicy), 1e-9)
	s.InDelta(0.8, s.profile.Exposure(models.FeatureSpicy), 1e-9)
	s.InDelta(-0.25, s.profile.NormalizedScore(models.FeatureSpicy), 1e-9)
}

func (s *ProfileSuite) TestRevert_GoodScenarios_RestoresPriorState() {
	s.profile.Apply(s.event(s.dish, models.ActionLike))
	before := s.profile.Clone()

	e := s.event(models.DishCandidate{
		Name:    "Tom Yum",
		Signals: map[models.FeatureID]float64{models.FeatureSour: 0.92, models.FeatureSpicy: 0.72},
	}, models.ActionDislike)
	s.profile.Apply(e)
	s.profile.Revert(e)

	s.Equal(before.TotalSwipes, s.profile.TotalSwipes)
	for _, f := range models.Features {
		s.InDelta(before.Score(f.ID), s.profile.Score(f.ID), 1e-9, f.ID)
		s.InDelta(before.Exposure(f.ID), s.profile.Exposure(f.ID), 1e-9, f.ID)
	}
	s.NotContains(s.profile.ExposureByFeature, models.FeatureSour)
}

func (s *ProfileSuite) TestInsights_GoodScenarios_RankingAndConfidence() {
	spicy := models.DishCandidate{Name: "a", Signals: map[models.FeatureID]float64{models.FeatureSpicy: 1, models.FeatureRice: 0.5}}
	sweet := models.DishCandidate{Name: "b", Signals: map[models.FeatureID]float64{models.FeatureSweet: 1, models.FeatureRice: 0.5}}

	for i := 0; i < 3; i++ {
		s.profile.Apply(s.event(spicy, models.ActionLike))
		s.profile.Apply(s.event(sweet, models.ActionDislike))
	}
	s.profile.Apply(s.event(models.DishCandidate{Name: "c", Signals: map[models.FeatureID]float64{models.FeatureSweet: 1}}, models.ActionLike))

	positive := s.profile.Insights(s.cfg, true, 6)
	s.Require().Len(positive, 1)
	s.Equal(models.FeatureSpicy, positive[0].Feature.ID)
	s.InDelta(1.0, positive[0].Score, 1e-9)
	s.InDelta(0.75, positive[0].Confidence, 1e-9)

	negative := s.profile.Insights(s.cfg, false, 6)
	s.Require().Len(negative, 1)
	s.Equal(models.FeatureSweet, negative[0].Feature.ID)
	s.InDelta(-0.5, negative[0].Score, 1e-9)
	s.InDelta(1.0, negative[0].Confidence, 1e-9)
}

func (s *ProfileSuite) TestInsights_GoodScenarios_OrderAndLimit() {
	signals := []map[models.FeatureID]float64{
		{models.FeatureSpicy: 1, models.FeatureBeef: 1},
		{models.FeatureSpicy: 1, models.FeatureSour: 1},
		{models.FeatureSour: 1, models.FeatureBeef: 1},
	}
	actions := []models.SwipeAction{models.ActionLike, models.ActionLike, models.ActionDislike}
	for i := range signals {
		s.profile.Apply(s.event(models.DishCandidate{Name: "d", Signals: signals[i]}, actions[i]))
	}
	// spicy 1.0, beef 0.0, sour 0.0
	s.profile.Apply(s.event(models.DishCandidate{Name: "e", Signals: map[models.FeatureID]float64{models.FeatureBeef: 1, models.FeatureSour: 0.9}}, models.ActionLike))

	got := s.profile.Insights(s.cfg, true, 2)
	s.Require().Len(got, 2)
	s.Equal(models.FeatureSpicy, got[0].Feature.ID)
	s.Equal(models.FeatureBeef, got[1].Feature.ID)
	s.GreaterOrEqual(got[0].Score, got[1].Score)
}

func (s *ProfileSuite) TestCoverageAndFeatureScores() {
	s.profile.Apply(s.event(s.dish, models.ActionLike))
	s.Equal(2, s.profile.Coverage())

	scores := s.profile.FeatureScores()
	s.Require().Len(scores, 2)
	s.Equal(string(models.FeatureSpicy), scores[0].Feature)
	s.Equal(string(models.FeaturePork), scores[1].Feature)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func (s *ProfileSuite) TestInsights_EdgeCases_MinimumExposureGate() {
	dish := models.DishCandidate{Name: "x", Signals: map[models.FeatureID]float64{models.FeatureSmoky: 0.6, models.FeatureLamb: 0.9}}
	s.profile.Apply(s.event(dish, models.ActionLike))

	got := s.profile.Insights(s.cfg, true, 6)
	s.Require().Len(got, 1)
	s.Equal(models.FeatureLamb, got[0].Feature.ID)
}

func (s *ProfileSuite) TestInsights_EdgeCases_ZeroLimit() {
	s.profile.Apply(s.event(s.dish, models.ActionLike))
	s.Empty(s.profile.Insights(s.cfg, true, 0))
}

func (s *ProfileSuite) TestRevert_EdgeCases_EmptyProfileStaysNonNegative() {
	s.profile.Revert(s.event(s.dish, models.ActionLike))

	s.Equal(0, s.profile.TotalSwipes)
	s.Zero(s.profile.Exposure(models.FeatureSpicy))
	s.Zero(s.profile.NormalizedScore(models.FeatureSpicy))
}

func (s *ProfileSuite) TestNormalizedScore_EdgeCases_UnexposedFeature() {
	s.Zero(s.profile.NormalizedScore(models.FeatureDuck))
}

func (s *ProfileSuite) TestApply_EdgeCases_NilMapsAfterDecode() {
	p := &Profile{}
	p.Apply(s.event(s.dish, models.ActionLike))
	s.InDelta(0.8, p.Score(models.FeatureSpicy), 1e-9)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func (s *ProfileSuite) TestProperties_RandomSequences() {
	rng := rand.New(rand.NewSource(42))
	actions := []models.SwipeAction{models.ActionLike, models.ActionNeutral, models.ActionDislike}

	var events []models.SwipeEvent
	for i := 0; i < 500; i++ {
		signals := make(map[models.FeatureID]float64)
		n := 2 + rng.Intn(4)
		for len(signals) < n {
			signals[models.Features[rng.Intn(len(models.Features))].ID] = rng.Float64()
		}
		e := s.event(models.DishCandidate{Name: "r", Signals: signals}, actions[rng.Intn(len(actions))])

		before := s.profile.Clone()
		s.profile.Apply(e)
		events = append(events, e)

		for id, exposure := range s.profile.ExposureByFeature {
			s.GreaterOrEqual(exposure, 0.0)
			s.LessOrEqual(s.profile.NormalizedScore(id), 1.0+1e-9)
			s.GreaterOrEqual(s.profile.NormalizedScore(id), -1.0-1e-9)
		}
		for _, in := range s.profile.Insights(s.cfg, true, 100) {
			s.Greater(in.Score, s.cfg.InsightThreshold)
		}
		for _, in := range s.profile.Insights(s.cfg, false, 100) {
			s.Less(in.Score, -s.cfg.InsightThreshold)
		}

		if i%7 == 0 {
			s.profile.Revert(e)
			events = events[:len(events)-1]
			s.Equal(before.TotalSwipes, s.profile.TotalSwipes)
			for _, f := range models.Features {
				s.InDelta(before.Score(f.ID), s.profile.Score(f.ID), 1e-9)
				s.InDelta(before.Exposure(f.ID), s.profile.Exposure(f.ID), 1e-9)
			}
		}
	}

	s.Equal(len(events), s.profile.TotalSwipes)
}
