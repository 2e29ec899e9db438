package models

// SafetyCheckResult is the verdict of the guardrail layer for one proposed
// auto-execution. When blocked, Guardrail names the limit that tripped.
type SafetyCheckResult struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
	Guardrail string `json:"guardrail,omitempty"`
}

// Guardrail names used in SafetyCheckResult and audit logs.
const (
	GuardrailKillSwitch  = "kill_switch"
	GuardrailBlastRadius = "blast_radius"
	GuardrailPatternRate = "pattern_rate"
)
