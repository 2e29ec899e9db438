package confidence

import (
	"math"

	"github.com/e-m-dev/remedy/internal/models"
)

// Stats summarises the remediation history a score is based on.
type Stats struct {
	// Successes and Failures count past remediation runs for the pattern.
	Successes int
	Failures  int

	// RecentFailure is true when a remediation for the same pattern+host
	// failed within the configured recency window.
	RecentFailure bool
}

// SuccessRate returns the historical success rate, or 0.5 when there is no
// history yet (neutral prior).
func (s Stats) SuccessRate() float64 {
	total := s.Successes + s.Failures
	if total == 0 {
		return 0.5
	}
	return float64(s.Successes) / float64(total)
}

// Scoring weights. Calibratable, not a contract; only the tier thresholds
// (>=80 high, 50-79 medium, <50 low) are fixed.
const (
	baseScore = 50.0

	// Success rate swings the score by up to +/- this much around the base.
	successRateWeight = 40.0

	// Larger deviation from threshold lowers confidence that a generic fix
	// suffices.
	deviationWeight = 20.0

	// Penalty when the same pattern+host failed remediation recently.
	recentFailurePenalty = 25.0

	// P0 issues are capped below the high tier unless the template's
	// success rate is very strong.
	criticalCeiling           = 79.0
	criticalCeilingExemptRate = 0.9
)

// Scorer computes confidence scores. It is a pure computation with no side
// effects or I/O, so decisions stay auditable and replayable.
type Scorer struct{}

// NewScorer creates a confidence scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score combines the weighted factors for an issue into a clamped 0-100
// confidence result with the contributing factors listed in order.
func (s *Scorer) Score(issue *models.DetectedIssue, stats Stats) models.ConfidenceResult {
	score := baseScore
	factors := make([]models.ConfidenceFactor, 0, 4)

	// Historical success rate of the linked remediation template
	rate := stats.SuccessRate()
	contribution := (rate - 0.5) * 2 * successRateWeight
	score += contribution
	factors = append(factors, models.ConfidenceFactor{
		Name:   "success_rate",
		Weight: successRateWeight,
		Value:  rate,
	})

	// Relative deviation of the triggering value from threshold
	deviation := relativeDeviation(issue.MetricValue, issue.Threshold)
	score -= deviation * deviationWeight
	factors = append(factors, models.ConfidenceFactor{
		Name:   "threshold_deviation",
		Weight: -deviationWeight,
		Value:  deviation,
	})

	// Recency penalty for a recent failed attempt on this pattern+host
	if stats.RecentFailure {
		score -= recentFailurePenalty
	}
	factors = append(factors, models.ConfidenceFactor{
		Name:   "recent_failure",
		Weight: -recentFailurePenalty,
		Value:  boolToFloat(stats.RecentFailure),
	})

	// Critical issues get a ceiling below the high tier unless the fix has
	// a very strong track record
	capped := 0.0
	if issue.Severity == models.SeverityP0 && rate < criticalCeilingExemptRate && score > criticalCeiling {
		score = criticalCeiling
		capped = 1.0
	}
	factors = append(factors, models.ConfidenceFactor{
		Name:   "severity_ceiling",
		Weight: criticalCeiling,
		Value:  capped,
	})

	score = clamp(score, 0, 100)

	return models.ConfidenceResult{
		Score:   score,
		Tier:    models.TierForScore(score),
		Factors: factors,
	}
}

// relativeDeviation returns |value-threshold| / |threshold| clamped to [0,1].
func relativeDeviation(value, threshold float64) float64 {
	if threshold == 0 {
		if value == 0 {
			return 0
		}
		return 1
	}
	return clamp(math.Abs(value-threshold)/math.Abs(threshold), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
