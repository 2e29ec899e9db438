package models

// Condition is the comparison a pattern applies to its metric.
type Condition string

const (
	ConditionGreaterThan Condition = "gt"
	ConditionLessThan    Condition = "lt"
	ConditionEqual       Condition = "eq"
	ConditionSpike       Condition = "spike"
	ConditionDrop        Condition = "drop"
)

// Valid reports whether the condition is one of the supported comparisons.
func (c Condition) Valid() bool {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionEqual, ConditionSpike, ConditionDrop:
		return true
	}
	return false
}

// Severity tiers for detected issues. P0 is the most critical.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityP0, SeverityP1, SeverityP2, SeverityP3:
		return true
	}
	return false
}

// DetectionPattern is a named rule mapping a metric condition to an issue
// category and a suggested remediation. Patterns are loaded once at startup
// and never mutated.
type DetectionPattern struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Category string   `yaml:"category" json:"category"`
	Severity Severity `yaml:"severity" json:"severity"`

	MetricKey        string    `yaml:"metric_key" json:"metric_key"`
	Condition        Condition `yaml:"condition" json:"condition"`
	Threshold        float64   `yaml:"threshold" json:"threshold"`
	SustainedSeconds int       `yaml:"sustained_seconds" json:"sustained_seconds"`
	CooldownSeconds  int       `yaml:"cooldown_seconds" json:"cooldown_seconds"`

	TemplateID    string `yaml:"template_id" json:"template_id"`
	AutoRemediate bool   `yaml:"auto_remediate" json:"auto_remediate"`
}
