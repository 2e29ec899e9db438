package models

// ActionKind identifies which executor a step dispatches to.
type ActionKind string

const (
	ActionShell        ActionKind = "shell"
	ActionScript       ActionKind = "script"
	ActionHTTP         ActionKind = "http"
	ActionDocker       ActionKind = "docker"
	ActionKubernetes   ActionKind = "k8s"
	ActionDatabase     ActionKind = "db"
	ActionNotification ActionKind = "notification"
	ActionCondition    ActionKind = "condition"
	ActionWait         ActionKind = "wait"
	ActionApproval     ActionKind = "approval"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionShell, ActionScript, ActionHTTP, ActionDocker, ActionKubernetes,
		ActionDatabase, ActionNotification, ActionCondition, ActionWait, ActionApproval:
		return true
	}
	return false
}

// FailurePolicy controls what the run engine does when a step fails after its
// retries are exhausted.
type FailurePolicy string

const (
	FailureContinue FailurePolicy = "continue"
	FailureAbort    FailurePolicy = "abort"
	FailureRollback FailurePolicy = "rollback"
)

func (p FailurePolicy) Valid() bool {
	switch p {
	case FailureContinue, FailureAbort, FailureRollback:
		return true
	}
	return false
}

// GuardCondition optionally gates a step on a variable from the run's
// variable bag. A step whose guard evaluates false is skipped.
type GuardCondition struct {
	Variable string    `yaml:"variable" json:"variable"`
	Operator Condition `yaml:"operator" json:"operator"`
	Value    float64   `yaml:"value" json:"value"`
}

// ActionStep is one unit of work in a remediation procedure.
type ActionStep struct {
	ID   string     `yaml:"id" json:"id"`
	Name string     `yaml:"name" json:"name"`
	Kind ActionKind `yaml:"kind" json:"kind"`

	Config map[string]interface{} `yaml:"config" json:"config"`

	TimeoutSeconds int             `yaml:"timeout_seconds" json:"timeout_seconds"`
	Retries        int             `yaml:"retries" json:"retries"`
	OnFailure      FailurePolicy   `yaml:"on_failure" json:"on_failure"`
	Guard          *GuardCondition `yaml:"guard,omitempty" json:"guard,omitempty"`
}

// RemediationTemplate is a reusable remediation procedure: ordered steps plus
// a separate rollback-step list. Templates are read-only catalog entries.
type RemediationTemplate struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	PatternID   string   `yaml:"pattern_id" json:"pattern_id"`
	Tags        []string `yaml:"tags" json:"tags"`

	AutoExecute      bool `yaml:"auto_execute" json:"auto_execute"`
	RequiresApproval bool `yaml:"requires_approval" json:"requires_approval"`

	Steps         []ActionStep `yaml:"steps" json:"steps"`
	RollbackSteps []ActionStep `yaml:"rollback_steps" json:"rollback_steps"`
}
