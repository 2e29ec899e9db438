package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/e-m-dev/remedy/internal/approval"
	"github.com/e-m-dev/remedy/internal/models"
)

// VarRunID is the variable bag key carrying the execution id, set by the run
// engine before any step executes.
const VarRunID = "run.id"

// ApprovalExecutor suspends a run on a human approval gate. The run does not
// advance until the request resolves or the gate times out.
//
// Config: message, timeout_minutes (default 30), on_timeout
// (abort|continue, default abort).
type ApprovalExecutor struct {
	service *approval.Service
}

func NewApprovalExecutor(service *approval.Service) *ApprovalExecutor {
	return &ApprovalExecutor{service: service}
}

func (e *ApprovalExecutor) Kind() models.ActionKind {
	return models.ActionApproval
}

func (e *ApprovalExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	runID, _ := vars[VarRunID].(string)
	message := stringConfig(step, "message", "Approval required for remediation step "+step.ID)
	timeout := time.Duration(intConfig(step, "timeout_minutes", 30)) * time.Minute

	resolution, err := e.service.Wait(ctx, runID, step.ID, message, timeout)
	if err != nil {
		if errors.Is(err, approval.ErrTimeout) && stringConfig(step, "on_timeout", "abort") == "continue" {
			return "timeout", nil
		}
		return "", err
	}

	return fmt.Sprintf("approved by %s", resolution.Approver), nil
}
