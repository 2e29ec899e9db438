package detector

import (
	"fmt"

	"github.com/e-m-dev/remedy/internal/models"
)

const (
	// Spike/drop detection needs a minimum of history before it may fire,
	// to avoid false positives on cold start.
	minSamplesForBaseline = 10

	// The most recent samples are excluded from the baseline so the spike
	// itself does not drag the baseline toward it.
	baselineExcludeRecent = 5
)

// evaluateCondition reports whether a pattern's condition holds for the
// latest value of its metric series.
func evaluateCondition(pattern *models.DetectionPattern, value float64, history *metricHistory) (bool, error) {
	switch pattern.Condition {
	case models.ConditionGreaterThan:
		return value > pattern.Threshold, nil

	case models.ConditionLessThan:
		return value < pattern.Threshold, nil

	case models.ConditionEqual:
		return value == pattern.Threshold, nil

	case models.ConditionSpike:
		if history.Len() < minSamplesForBaseline {
			return false, nil
		}
		baseline, ok := history.Baseline(baselineExcludeRecent)
		if !ok || baseline == 0 {
			return false, nil
		}
		return value > baseline*pattern.Threshold, nil

	case models.ConditionDrop:
		if history.Len() < minSamplesForBaseline {
			return false, nil
		}
		baseline, ok := history.Baseline(baselineExcludeRecent)
		if !ok || pattern.Threshold == 0 {
			return false, nil
		}
		return value < baseline/pattern.Threshold, nil
	}

	return false, fmt.Errorf("unknown condition %q", pattern.Condition)
}
