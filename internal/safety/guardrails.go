package safety

import (
	"log"
	"sync"
	"time"

	"github.com/e-m-dev/remedy/internal/models"
)

// Limits configures the guardrail windows.
type Limits struct {
	// BlastRadiusLimit is the maximum auto-executions per host within
	// BlastRadiusWindow.
	BlastRadiusLimit  int
	BlastRadiusWindow time.Duration

	// PatternRateLimit is the maximum auto-executions per pattern across
	// all hosts within PatternRateWindow.
	PatternRateLimit  int
	PatternRateWindow time.Duration
}

// Guardrails is the independent veto layer over autonomous execution: a global
// kill switch, a per-host blast-radius window, and a per-pattern rate window.
// Counters reset only by window expiry, never by manual clearing. Safe for
// concurrent use.
type Guardrails struct {
	limits Limits

	mu            sync.Mutex
	killSwitch    bool
	killReason    string
	hostEvents    map[string][]time.Time
	patternEvents map[string][]time.Time

	now func() time.Time
}

// NewGuardrails creates a guardrail layer with the given limits.
func NewGuardrails(limits Limits) *Guardrails {
	return &Guardrails{
		limits:        limits,
		hostEvents:    make(map[string][]time.Time),
		patternEvents: make(map[string][]time.Time),
		now:           time.Now,
	}
}

// Check runs all guardrails for a proposed auto-execution. Any single failing
// check blocks the action. Every call is logged for audit regardless of
// outcome.
func (g *Guardrails) Check(patternID, host, action string) models.SafetyCheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := g.check(patternID, host)

	if result.Allowed {
		log.Printf("[Safety] ALLOW pattern=%s host=%s action=%s", patternID, host, action)
	} else {
		log.Printf("[Safety] BLOCK pattern=%s host=%s action=%s guardrail=%s reason=%s",
			patternID, host, action, result.Guardrail, result.Reason)
	}

	return result
}

func (g *Guardrails) check(patternID, host string) models.SafetyCheckResult {
	if g.killSwitch {
		return models.SafetyCheckResult{
			Allowed:   false,
			Reason:    "global kill switch engaged: " + g.killReason,
			Guardrail: models.GuardrailKillSwitch,
		}
	}

	now := g.now()

	hostCount := countInWindow(g.hostEvents, host, now, g.limits.BlastRadiusWindow)
	if hostCount >= g.limits.BlastRadiusLimit {
		return models.SafetyCheckResult{
			Allowed:   false,
			Reason:    "blast radius limit reached for host " + host,
			Guardrail: models.GuardrailBlastRadius,
		}
	}

	patternCount := countInWindow(g.patternEvents, patternID, now, g.limits.PatternRateWindow)
	if patternCount >= g.limits.PatternRateLimit {
		return models.SafetyCheckResult{
			Allowed:   false,
			Reason:    "rate limit reached for pattern " + patternID,
			Guardrail: models.GuardrailPatternRate,
		}
	}

	return models.SafetyCheckResult{Allowed: true, Reason: "all guardrails passed"}
}

// countInWindow prunes expired events for a key and returns how many remain.
func countInWindow(events map[string][]time.Time, key string, now time.Time, window time.Duration) int {
	kept := events[key][:0]
	for _, t := range events[key] {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	events[key] = kept
	return len(kept)
}

// RecordExecution counts one auto-execution against the host and pattern
// windows. Called only when a run is actually launched autonomously.
func (g *Guardrails) RecordExecution(patternID, host string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.hostEvents[host] = append(g.hostEvents[host], now)
	g.patternEvents[patternID] = append(g.patternEvents[patternID], now)
}

// EngageKillSwitch blocks every subsequent check. In-flight runs are not
// cancelled; new auto-executions stop, running ones finish.
func (g *Guardrails) EngageKillSwitch(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.killSwitch = true
	g.killReason = reason
	log.Printf("[Safety] Kill switch ENGAGED (%s) - new auto-executions stop; in-flight runs finish", reason)
}

// DisengageKillSwitch re-enables autonomous execution.
func (g *Guardrails) DisengageKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.killSwitch = false
	g.killReason = ""
	log.Printf("[Safety] Kill switch disengaged")
}

// KillSwitchEngaged reports the current kill switch state.
func (g *Guardrails) KillSwitchEngaged() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.killSwitch
}
