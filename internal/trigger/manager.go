package trigger

import (
	"context"
	"log"

	"github.com/e-m-dev/remedy/internal/catalog"
	"github.com/e-m-dev/remedy/internal/confidence"
	"github.com/e-m-dev/remedy/internal/history"
	"github.com/e-m-dev/remedy/internal/models"
	"github.com/e-m-dev/remedy/internal/safety"
)

// Action is the outcome of the auto-trigger decision table.
type Action string

const (
	ActionAutoExecute   Action = "auto_execute"
	ActionQueueApproval Action = "queue_approval"
	ActionNotifyOnly    Action = "notify_only"
)

// Decision is the full, auditable outcome of deciding one issue.
type Decision struct {
	Action     Action                   `json:"action"`
	TemplateID string                   `json:"template_id,omitempty"`
	Confidence models.ConfidenceResult  `json:"confidence"`
	Safety     models.SafetyCheckResult `json:"safety"`
	Reason     string                   `json:"reason"`
}

// Manager is the single place that reconciles safety ("can we legally act"),
// confidence ("should we act"), and template flags ("is this action permitted
// for this class of problem"). No other component invokes the workflow
// executor from an autonomous trigger.
type Manager struct {
	catalog    *catalog.Catalog
	scorer     *confidence.Scorer
	guardrails *safety.Guardrails
	store      history.Store
}

// NewManager creates an auto-trigger manager over the given collaborators.
func NewManager(cat *catalog.Catalog, scorer *confidence.Scorer, guardrails *safety.Guardrails, store history.Store) *Manager {
	return &Manager{
		catalog:    cat,
		scorer:     scorer,
		guardrails: guardrails,
		store:      store,
	}
}

// Decide applies the decision table to a detected issue.
func (m *Manager) Decide(ctx context.Context, issue *models.DetectedIssue) Decision {
	// 1. Resolve the template: exact pattern link first, then tag glob
	// fallback
	template, ok := m.catalog.TemplateForPattern(issue.PatternID)
	if !ok {
		template, ok = m.catalog.MatchByTags(issue.PatternID, issue.Category)
	}
	if !ok {
		return Decision{
			Action: ActionNotifyOnly,
			Reason: "no remediation template resolves for pattern " + issue.PatternID,
		}
	}

	// 2. Compute confidence and the safety verdict
	stats, err := m.store.Stats(ctx, issue.PatternID, issue.Host)
	if err != nil {
		// Degrade to an empty history rather than abort the decision
		log.Printf("[Trigger] Warning: failed to load outcome history for %s: %v", issue.PatternID, err)
		stats = confidence.Stats{}
	}

	conf := m.scorer.Score(issue, stats)
	check := m.guardrails.Check(issue.PatternID, issue.Host, template.ID)

	decision := Decision{
		TemplateID: template.ID,
		Confidence: conf,
		Safety:     check,
	}

	// 3. An explicit per-template override always wins, regardless of
	// confidence
	if !template.AutoExecute || template.RequiresApproval {
		decision.Action = ActionQueueApproval
		decision.Reason = "template requires human approval"
		return decision
	}

	// A pattern flagged non-autonomous behaves like a template override
	if pattern, ok := m.catalog.Pattern(issue.PatternID); ok && !pattern.AutoRemediate {
		decision.Action = ActionQueueApproval
		decision.Reason = "pattern is not flagged for auto-remediation"
		return decision
	}

	// 4. Kill switch downgrades all the way to notify
	if !check.Allowed && check.Guardrail == models.GuardrailKillSwitch {
		decision.Action = ActionNotifyOnly
		decision.Reason = check.Reason
		return decision
	}

	// 5. Reconcile tier with the safety verdict
	switch conf.Tier {
	case models.TierHigh:
		if check.Allowed {
			decision.Action = ActionAutoExecute
			decision.Reason = "high confidence and all guardrails passed"
		} else {
			decision.Action = ActionQueueApproval
			decision.Reason = "high confidence but blocked by " + check.Guardrail
		}
	case models.TierMedium:
		decision.Action = ActionQueueApproval
		decision.Reason = "medium confidence requires approval"
	default:
		decision.Action = ActionNotifyOnly
		decision.Reason = "low confidence, not acting autonomously"
	}

	return decision
}
