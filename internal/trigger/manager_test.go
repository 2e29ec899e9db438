package trigger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e-m-dev/remedy/internal/catalog"
	"github.com/e-m-dev/remedy/internal/confidence"
	"github.com/e-m-dev/remedy/internal/history"
	"github.com/e-m-dev/remedy/internal/models"
	"github.com/e-m-dev/remedy/internal/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPatterns = `
patterns:
  - id: cpu-high
    name: High CPU
    category: resource
    severity: P1
    metric_key: system.cpu_usage_percent
    condition: gt
    threshold: 85
    template_id: restart-service
    auto_remediate: true
  - id: mem-critical
    name: Critical memory
    category: resource
    severity: P0
    metric_key: system.memory_usage_percent
    condition: gt
    threshold: 95
    template_id: clear-caches
    auto_remediate: true
  - id: disk-slow
    name: Slow disk
    category: storage
    severity: P2
    metric_key: system.disk_latency_ms
    condition: gt
    threshold: 50
    auto_remediate: true
  - id: manual-only
    name: Manual pattern
    category: resource
    severity: P2
    metric_key: system.cpu_usage_percent
    condition: gt
    threshold: 90
    template_id: restart-service
    auto_remediate: false
  - id: orphan
    name: No template anywhere
    category: network
    severity: P2
    metric_key: net.errors
    condition: gt
    threshold: 10
    auto_remediate: true
`

const testTemplates = `
templates:
  - id: restart-service
    name: Restart service
    auto_execute: true
    steps:
      - id: restart
        kind: shell
        config:
          command: "systemctl restart app"
  - id: clear-caches
    name: Clear caches
    auto_execute: true
    requires_approval: true
    steps:
      - id: drop
        kind: shell
        config:
          command: "sync"
  - id: storage-fix
    name: Storage fix
    tags: [storage]
    auto_execute: true
    steps:
      - id: prune
        kind: shell
        config:
          command: "docker system prune -f"
`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()

	patternsPath := filepath.Join(dir, "patterns.yaml")
	templatesPath := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(patternsPath, []byte(testPatterns), 0o644))
	require.NoError(t, os.WriteFile(templatesPath, []byte(testTemplates), 0o644))

	cat, err := catalog.Load(patternsPath, templatesPath)
	require.NoError(t, err)
	return cat
}

func testManager(t *testing.T) (*Manager, *safety.Guardrails, history.Store) {
	t.Helper()

	guardrails := safety.NewGuardrails(safety.Limits{
		BlastRadiusLimit:  3,
		BlastRadiusWindow: 10 * time.Minute,
		PatternRateLimit:  5,
		PatternRateWindow: 10 * time.Minute,
	})
	store := history.NewMemoryStore(time.Hour)
	m := NewManager(testCatalog(t), confidence.NewScorer(), guardrails, store)
	return m, guardrails, store
}

func issueFor(patternID, category string, severity models.Severity, value, threshold float64) *models.DetectedIssue {
	return &models.DetectedIssue{
		ID:          "issue-1",
		PatternID:   patternID,
		Host:        "web-1",
		Category:    category,
		Severity:    severity,
		MetricValue: value,
		Threshold:   threshold,
		Status:      models.IssueDetected,
	}
}

func recordSuccesses(t *testing.T, store history.Store, patternID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.RecordOutcome(context.Background(), patternID, "web-1", true))
	}
}

func TestManager_HighConfidenceAutoExecutes(t *testing.T) {
	m, _, store := testManager(t)
	recordSuccesses(t, store, "cpu-high", 20)

	decision := m.Decide(context.Background(), issueFor("cpu-high", "resource", models.SeverityP1, 85.1, 85))

	assert.Equal(t, ActionAutoExecute, decision.Action)
	assert.Equal(t, "restart-service", decision.TemplateID)
	assert.Equal(t, models.TierHigh, decision.Confidence.Tier)
	assert.True(t, decision.Safety.Allowed)
}

func TestManager_MediumConfidenceQueuesApproval(t *testing.T) {
	m, _, _ := testManager(t)

	// No history: neutral prior lands in the medium tier
	decision := m.Decide(context.Background(), issueFor("cpu-high", "resource", models.SeverityP1, 85.1, 85))

	assert.Equal(t, ActionQueueApproval, decision.Action)
	assert.Equal(t, models.TierMedium, decision.Confidence.Tier)
}

func TestManager_LowConfidenceNotifiesOnly(t *testing.T) {
	m, _, store := testManager(t)
	for i := 0; i < 9; i++ {
		require.NoError(t, store.RecordOutcome(context.Background(), "cpu-high", "web-1", false))
	}

	decision := m.Decide(context.Background(), issueFor("cpu-high", "resource", models.SeverityP1, 85.1, 85))

	assert.Equal(t, ActionNotifyOnly, decision.Action)
	assert.Equal(t, models.TierLow, decision.Confidence.Tier)
}

func TestManager_TemplateApprovalFlagOverridesConfidence(t *testing.T) {
	m, _, store := testManager(t)
	recordSuccesses(t, store, "mem-critical", 30)

	decision := m.Decide(context.Background(), issueFor("mem-critical", "resource", models.SeverityP0, 96, 95))

	// requires_approval wins no matter how confident the scorer is
	assert.Equal(t, ActionQueueApproval, decision.Action)
	assert.Equal(t, "clear-caches", decision.TemplateID)
}

func TestManager_NonAutoRemediatePatternQueuesApproval(t *testing.T) {
	m, _, store := testManager(t)
	recordSuccesses(t, store, "manual-only", 20)

	decision := m.Decide(context.Background(), issueFor("manual-only", "resource", models.SeverityP2, 91, 90))

	assert.Equal(t, ActionQueueApproval, decision.Action)
}

func TestManager_KillSwitchDowngradesToNotify(t *testing.T) {
	m, guardrails, store := testManager(t)
	recordSuccesses(t, store, "cpu-high", 20)
	guardrails.EngageKillSwitch("maintenance window")

	decision := m.Decide(context.Background(), issueFor("cpu-high", "resource", models.SeverityP1, 85.1, 85))

	assert.Equal(t, ActionNotifyOnly, decision.Action)
	assert.Equal(t, models.GuardrailKillSwitch, decision.Safety.Guardrail)
}

func TestManager_RateLimitedHighConfidenceQueuesApproval(t *testing.T) {
	m, guardrails, store := testManager(t)
	recordSuccesses(t, store, "cpu-high", 20)

	// Exhaust the per-host blast radius
	for i := 0; i < 3; i++ {
		guardrails.RecordExecution("cpu-high", "web-1")
	}

	decision := m.Decide(context.Background(), issueFor("cpu-high", "resource", models.SeverityP1, 85.1, 85))

	// Blocked but not by the kill switch: degrade to approval, not silence
	assert.Equal(t, ActionQueueApproval, decision.Action)
	assert.Equal(t, models.GuardrailBlastRadius, decision.Safety.Guardrail)
}

func TestManager_TagFallbackResolvesTemplate(t *testing.T) {
	m, _, store := testManager(t)
	recordSuccesses(t, store, "disk-slow", 20)

	// disk-slow has no linked template; the storage tag matches its category
	decision := m.Decide(context.Background(), issueFor("disk-slow", "storage", models.SeverityP2, 51, 50))

	assert.Equal(t, ActionAutoExecute, decision.Action)
	assert.Equal(t, "storage-fix", decision.TemplateID)
}

func TestManager_NoTemplateNotifiesOnly(t *testing.T) {
	m, _, _ := testManager(t)

	decision := m.Decide(context.Background(), issueFor("orphan", "network", models.SeverityP2, 20, 10))

	assert.Equal(t, ActionNotifyOnly, decision.Action)
	assert.Empty(t, decision.TemplateID)
}
