package actions

import (
	"context"
	"testing"
	"time"

	"github.com/e-m-dev/remedy/internal/approval"
	"github.com/e-m-dev/remedy/internal/eventbus"
	"github.com/e-m-dev/remedy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalExecutor_ApprovedGatePasses(t *testing.T) {
	service := approval.NewService(eventbus.Noop{})
	e := NewApprovalExecutor(service)

	step := models.ActionStep{
		ID:     "gate",
		Kind:   models.ActionApproval,
		Config: map[string]interface{}{"message": "go ahead?"},
	}
	vars := map[string]interface{}{VarRunID: "run-1"}

	done := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		out, err := e.Execute(context.Background(), step, vars)
		done <- out
		errCh <- err
	}()

	// Resolve once the gate registers
	var resolved bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !resolved {
		for _, pending := range service.Pending() {
			require.NoError(t, service.Resolve(pending.ID, true, "alice", ""))
			resolved = true
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, resolved)

	assert.Equal(t, "approved by alice", <-done)
	assert.NoError(t, <-errCh)
}

func TestApprovalExecutor_DeniedGateFails(t *testing.T) {
	service := approval.NewService(eventbus.Noop{})
	e := NewApprovalExecutor(service)

	step := models.ActionStep{ID: "gate", Kind: models.ActionApproval, Config: map[string]interface{}{}}

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), step, map[string]interface{}{VarRunID: "run-1"})
		errCh <- err
	}()

	var resolved bool
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !resolved {
		for _, pending := range service.Pending() {
			require.NoError(t, service.Resolve(pending.ID, false, "bob", "risky"))
			resolved = true
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, resolved)

	assert.ErrorIs(t, <-errCh, approval.ErrDenied)
}

func TestApprovalExecutor_RunCancellationPropagates(t *testing.T) {
	service := approval.NewService(eventbus.Noop{})
	e := NewApprovalExecutor(service)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	step := models.ActionStep{
		ID:   "gate",
		Kind: models.ActionApproval,
		Config: map[string]interface{}{
			"on_timeout": "continue",
		},
	}

	_, err := e.Execute(ctx, step, map[string]interface{}{VarRunID: "run-1"})

	// Run cancellation is not a gate timeout: on_timeout does not apply
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
