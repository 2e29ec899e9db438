package detector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/e-m-dev/remedy/internal/metricsfeed"
	"github.com/e-m-dev/remedy/internal/models"
)

var (
	// ErrIssueNotFound means the issue id is unknown to the detector.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrInvalidTransition means the requested lifecycle transition is not
	// allowed from the issue's current state.
	ErrInvalidTransition = errors.New("invalid issue transition")
)

// Detector evaluates detection patterns against a metrics feed and owns the
// issue lifecycle: active-issue identity, cooldowns, and explicit state
// transitions. Safe for concurrent use; detection cycles and transition calls
// may arrive from different goroutines.
type Detector struct {
	patterns []models.DetectionPattern
	feed     metricsfeed.Feed

	mu             sync.Mutex
	history        map[string]*metricHistory        // keyed host|metric_key
	active         map[string]*models.DetectedIssue // keyed by issue identity key
	issues         map[string]*models.DetectedIssue // keyed by issue id, never deleted
	cooldownUntil  map[string]time.Time             // keyed by issue identity key
	sustainedSince map[string]time.Time             // keyed by issue identity key

	now func() time.Time
}

// NewDetector creates a detector for the given pattern catalog and feed.
func NewDetector(patterns []models.DetectionPattern, feed metricsfeed.Feed) *Detector {
	return &Detector{
		patterns:       patterns,
		feed:           feed,
		history:        make(map[string]*metricHistory),
		active:         make(map[string]*models.DetectedIssue),
		issues:         make(map[string]*models.DetectedIssue),
		cooldownUntil:  make(map[string]time.Time),
		sustainedSince: make(map[string]time.Time),
		now:            time.Now,
	}
}

// RunCycle evaluates every pattern against every host and returns newly
// detected issues. A metric fetch or evaluation failure for one pattern never
// aborts the cycle for the others.
func (d *Detector) RunCycle(ctx context.Context, hosts []string) []*models.DetectedIssue {
	var detected []*models.DetectedIssue

	for i := range d.patterns {
		pattern := &d.patterns[i]

		for _, host := range hosts {
			issue, err := d.evaluate(ctx, pattern, host)
			if err != nil {
				if errors.Is(err, metricsfeed.ErrUnavailable) {
					continue // skip this pattern this cycle
				}
				log.Printf("[Detector] Pattern %s evaluation failed on %s: %v", pattern.ID, host, err)
				continue
			}
			if issue != nil {
				log.Printf("[Detector] Detected [%s] %s on %s: value=%.2f threshold=%.2f",
					issue.Severity, pattern.ID, host, issue.MetricValue, issue.Threshold)
				detected = append(detected, issue)
			}
		}
	}

	return detected
}

// evaluate runs one pattern/host pair: fetch, record history, check the
// condition, and apply sustained-duration, identity, and cooldown rules.
func (d *Detector) evaluate(ctx context.Context, pattern *models.DetectionPattern, host string) (*models.DetectedIssue, error) {
	value, err := d.feed.GetMetric(ctx, pattern.MetricKey, host)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seriesKey := host + "|" + pattern.MetricKey
	hist, ok := d.history[seriesKey]
	if !ok {
		hist = newMetricHistory()
		d.history[seriesKey] = hist
	}
	hist.Add(value)

	fired, err := evaluateCondition(pattern, value, hist)
	if err != nil {
		return nil, err
	}

	key := models.IssueKey(pattern.ID, host)
	now := d.now()

	if !fired {
		// Condition no longer holds: reset the sustained timer
		delete(d.sustainedSince, key)
		return nil, nil
	}

	// Sustained-duration: the condition must hold continuously before an
	// issue is raised
	if pattern.SustainedSeconds > 0 {
		since, tracking := d.sustainedSince[key]
		if !tracking {
			d.sustainedSince[key] = now
			return nil, nil
		}
		if now.Sub(since) < time.Duration(pattern.SustainedSeconds)*time.Second {
			return nil, nil
		}
	}

	// One active issue per identity key
	if _, isActive := d.active[key]; isActive {
		return nil, nil
	}

	// Cooldown rate-limits alert noise even after quick resolve/re-trigger
	if until, inCooldown := d.cooldownUntil[key]; inCooldown && now.Before(until) {
		return nil, nil
	}

	issue := models.NewDetectedIssue(pattern, host, value)
	d.active[key] = issue
	d.issues[issue.ID] = issue
	d.cooldownUntil[key] = now.Add(time.Duration(pattern.CooldownSeconds) * time.Second)
	delete(d.sustainedSince, key)

	return issue, nil
}

// Issue returns a copy of the issue with the given id.
func (d *Detector) Issue(id string) (*models.DetectedIssue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	issue, ok := d.issues[id]
	if !ok {
		return nil, ErrIssueNotFound
	}
	snapshot := *issue
	return &snapshot, nil
}

// ActiveIssues returns copies of all currently active (non-resolved) issues.
func (d *Detector) ActiveIssues() []*models.DetectedIssue {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]*models.DetectedIssue, 0, len(d.active))
	for _, issue := range d.active {
		snapshot := *issue
		result = append(result, &snapshot)
	}
	return result
}

// Acknowledge marks a detected issue as acknowledged by an operator.
func (d *Detector) Acknowledge(id string) error {
	return d.transition(id, models.IssueAcknowledged, "", func(from models.IssueStatus) bool {
		return from == models.IssueDetected
	})
}

// StartRemediation marks an issue as remediating. Called by the pipeline when
// a run is launched for it.
func (d *Detector) StartRemediation(id string) error {
	return d.transition(id, models.IssueRemediating, "", func(from models.IssueStatus) bool {
		return from == models.IssueDetected || from == models.IssueAcknowledged
	})
}

// Resolve closes an issue after confirmed remediation or operator action.
// There is no implicit auto-resolution.
func (d *Detector) Resolve(id, result string) error {
	return d.transition(id, models.IssueResolved, result, func(from models.IssueStatus) bool {
		return !from.Terminal()
	})
}

// Escalate flags an issue for human attention. Reachable from any
// non-terminal state.
func (d *Detector) Escalate(id, reason string) error {
	return d.transition(id, models.IssueEscalated, reason, func(from models.IssueStatus) bool {
		return !from.Terminal()
	})
}

func (d *Detector) transition(id string, to models.IssueStatus, result string, allowed func(models.IssueStatus) bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	issue, ok := d.issues[id]
	if !ok {
		return ErrIssueNotFound
	}

	if !allowed(issue.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, issue.Status, to)
	}

	issue.Status = to
	if result != "" {
		issue.Result = result
	}

	if to == models.IssueResolved {
		resolvedAt := d.now().UTC()
		issue.ResolvedAt = &resolvedAt
		// Resolved issues free their identity key; cooldown still applies
		delete(d.active, issue.Key())
	}

	log.Printf("[Detector] Issue %s (%s) -> %s", id, issue.Key(), to)
	return nil
}
