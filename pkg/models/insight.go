package models

// TasteInsight is a derived preference statement about one feature.
type TasteInsight struct {
	Feature    Feature `json:"feature"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// FeatureScore is the compact form of an insight sent to remote services.
type FeatureScore struct {
	Feature string  `json:"id"`
	Score   float64 `json:"score"`
}

// ScoreOf converts an insight to its wire form.
func (i TasteInsight) ScoreOf() FeatureScore {
	return FeatureScore{Feature: string(i.Feature.ID), Score: i.Score}
}

// FeatureScores converts insights to their wire form, preserving order.
func FeatureScores(insights []TasteInsight) []FeatureScore {
	out := make([]FeatureScore, 0, len(insights))
	for _, in := range insights {
		out = append(out, in.ScoreOf())
	}
	return out
}
