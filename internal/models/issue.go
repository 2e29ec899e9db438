package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueStatus is the lifecycle state of a detected issue.
type IssueStatus string

const (
	IssueDetected     IssueStatus = "detected"
	IssueAcknowledged IssueStatus = "acknowledged"
	IssueRemediating  IssueStatus = "remediating"
	IssueResolved     IssueStatus = "resolved"
	IssueEscalated    IssueStatus = "escalated"
)

// Terminal reports whether no further transitions are allowed from this state.
func (s IssueStatus) Terminal() bool {
	return s == IssueResolved
}

// DetectedIssue is one live instance of a pattern having fired for a specific
// host. At most one non-resolved issue exists per (pattern, host) identity key.
// Issues are never deleted, only marked resolved.
type DetectedIssue struct {
	ID        string   `json:"id"`
	PatternID string   `json:"pattern_id"`
	Host      string   `json:"host"`
	Category  string   `json:"category"`
	Severity  Severity `json:"severity"`

	MetricKey   string  `json:"metric_key"`
	MetricValue float64 `json:"metric_value"`
	Threshold   float64 `json:"threshold"`

	Status     IssueStatus `json:"status"`
	DetectedAt time.Time   `json:"detected_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`

	// Result records how the issue was closed out (remediation summary,
	// operator note, or escalation reason).
	Result string `json:"result,omitempty"`
}

// NewDetectedIssue creates an issue in the Detected state for the given
// pattern and host.
func NewDetectedIssue(pattern *DetectionPattern, host string, value float64) *DetectedIssue {
	return &DetectedIssue{
		ID:          uuid.NewString(),
		PatternID:   pattern.ID,
		Host:        host,
		Category:    pattern.Category,
		Severity:    pattern.Severity,
		MetricKey:   pattern.MetricKey,
		MetricValue: value,
		Threshold:   pattern.Threshold,
		Status:      IssueDetected,
		DetectedAt:  time.Now().UTC(),
	}
}

// Key returns the issue identity key (pattern_id, host).
func (i *DetectedIssue) Key() string {
	return IssueKey(i.PatternID, i.Host)
}

// IssueKey builds the identity key used for active-issue tracking and
// cooldowns.
func IssueKey(patternID, host string) string {
	return patternID + ":" + host
}
