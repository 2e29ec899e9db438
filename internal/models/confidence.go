package models

// ConfidenceTier buckets a confidence score into the bands the trigger
// decision table understands.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"   // score >= 80
	TierMedium ConfidenceTier = "medium" // 50 <= score < 80
	TierLow    ConfidenceTier = "low"    // score < 50
)

// TierForScore maps a clamped score to its tier.
func TierForScore(score float64) ConfidenceTier {
	switch {
	case score >= 80:
		return TierHigh
	case score >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

// ConfidenceFactor is one contributing input to a confidence score, kept for
// auditability.
type ConfidenceFactor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value"`
}

// ConfidenceResult is a 0-100 score expressing how safe it is to remediate an
// issue without human review. Computed fresh per decision; never persisted as
// mutable state.
type ConfidenceResult struct {
	Score   float64            `json:"score"`
	Tier    ConfidenceTier     `json:"tier"`
	Factors []ConfidenceFactor `json:"factors"`
}
