package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/e-m-dev/remedy/internal/models"
)

// WaitExecutor pauses a run, typically to let a fix settle before a
// verification step.
//
// Config: seconds (required, > 0).
type WaitExecutor struct{}

func NewWaitExecutor() *WaitExecutor {
	return &WaitExecutor{}
}

func (e *WaitExecutor) Kind() models.ActionKind {
	return models.ActionWait
}

func (e *WaitExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	seconds := intConfig(step, "seconds", 0)
	if seconds <= 0 {
		return "", fmt.Errorf("wait step %q: seconds must be positive", step.ID)
	}

	select {
	case <-time.After(time.Duration(seconds) * time.Second):
		return fmt.Sprintf("waited %ds", seconds), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ConditionExecutor evaluates a comparison against the run's variable bag and
// outputs "true" or "false" for conditional edges to branch on.
//
// Config: variable (required), operator (gt|lt|eq, default gt), value.
type ConditionExecutor struct{}

func NewConditionExecutor() *ConditionExecutor {
	return &ConditionExecutor{}
}

func (e *ConditionExecutor) Kind() models.ActionKind {
	return models.ActionCondition
}

func (e *ConditionExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	variable := stringConfig(step, "variable", "")
	if variable == "" {
		return "", fmt.Errorf("condition step %q: variable is required", step.ID)
	}

	value, ok := lookupNumeric(vars, variable)
	if !ok {
		return "", fmt.Errorf("condition step %q: variable %q not found or not numeric", step.ID, variable)
	}

	operator := models.Condition(stringConfig(step, "operator", string(models.ConditionGreaterThan)))
	target := floatConfig(step, "value", 0)

	var result bool
	switch operator {
	case models.ConditionGreaterThan:
		result = value > target
	case models.ConditionLessThan:
		result = value < target
	case models.ConditionEqual:
		result = value == target
	default:
		return "", fmt.Errorf("condition step %q: unsupported operator %q", step.ID, operator)
	}

	if result {
		return "true", nil
	}
	return "false", nil
}

// lookupNumeric fetches a variable from the bag as a float.
func lookupNumeric(vars map[string]interface{}, name string) (float64, bool) {
	switch v := vars[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
