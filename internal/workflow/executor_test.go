package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/e-m-dev/remedy/internal/actions"
	"github.com/e-m-dev/remedy/internal/eventbus"
	"github.com/e-m-dev/remedy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor is a programmable step executor for a single action kind.
type fakeExecutor struct {
	kind models.ActionKind

	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error)
}

func (f *fakeExecutor) Kind() models.ActionKind { return f.kind }

func (f *fakeExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, step.ID)
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(ctx, step, vars)
	}
	return "ok", nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExecutor) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// recordingSink captures published subjects for assertions.
type recordingSink struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingSink) Publish(subject string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recordingSink) count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// runIDs lists the execution ids the executor knows about.
func (e *Executor) runIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	return ids
}

func newTestExecutor(fakes ...*fakeExecutor) (*Executor, *recordingSink) {
	registry := actions.NewRegistry()
	for _, f := range fakes {
		registry.Register(f)
	}
	sink := &recordingSink{}
	return NewExecutor(registry, sink, 30*time.Second), sink
}

func shellStep(id string) models.ActionStep {
	return models.ActionStep{ID: id, Kind: models.ActionShell}
}

func linearTemplate(id string, steps ...models.ActionStep) *models.RemediationTemplate {
	return &models.RemediationTemplate{ID: id, Name: id, Steps: steps}
}

func TestExecutor_CompletesLinearRun(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell}
	e, sink := newTestExecutor(fake)

	template := linearTemplate("t1", shellStep("a"), shellStep("b"), shellStep("c"))
	result, err := e.ExecuteTemplate(context.Background(), template, map[string]interface{}{"issue.host": "web-1"})

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, []string{"a", "b", "c"}, fake.called())
	assert.NotNil(t, result.CompletedAt)
	assert.False(t, result.RollbackExecuted)

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, models.NodeSuccess, result.NodeResults[id].Status)
	}

	// Trigger data and run id are in the variable bag, outputs feed back in
	assert.Equal(t, "web-1", result.Variables["issue.host"])
	assert.Equal(t, result.ExecutionID, result.Variables[actions.VarRunID])
	assert.Equal(t, "ok", result.Variables["a.output"])

	assert.Equal(t, 1, sink.count(eventbus.SubjectRunStarted))
	assert.Equal(t, 1, sink.count(eventbus.SubjectRunCompleted))
}

func TestExecutor_CyclicGraphRejectedBeforeExecution(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell}
	e, sink := newTestExecutor(fake)

	g := NewGraph()
	require.NoError(t, g.AddNode(shellStep("a")))
	require.NoError(t, g.AddNode(shellStep("b")))
	require.NoError(t, g.AddEdge("a", "b", ""))
	require.NoError(t, g.AddEdge("b", "a", ""))

	result, err := e.ExecuteGraph(context.Background(), "w1", g, nil, nil)

	assert.ErrorIs(t, err, ErrCyclicGraph)
	assert.Nil(t, result)
	// Nothing ran and nothing was published
	assert.Equal(t, 0, fake.callCount())
	assert.Equal(t, 0, sink.count(eventbus.SubjectRunStarted))
}

func TestExecutor_FailurePolicyContinue(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		if step.ID == "b" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}}
	e, _ := newTestExecutor(fake)

	stepB := shellStep("b")
	stepB.OnFailure = models.FailureContinue
	template := linearTemplate("t1", shellStep("a"), stepB, shellStep("c"))

	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, models.NodeFailed, result.NodeResults["b"].Status)
	assert.Equal(t, models.NodeSuccess, result.NodeResults["c"].Status)
}

func TestExecutor_FailurePolicyAbort(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		if step.ID == "b" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}}
	e, _ := newTestExecutor(fake)

	stepB := shellStep("b")
	stepB.OnFailure = models.FailureAbort
	template := linearTemplate("t1", shellStep("a"), stepB, shellStep("c"))

	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, result.Status)
	assert.Contains(t, result.Error, "b failed")
	// The run stopped before c
	assert.NotContains(t, fake.called(), "c")
	assert.Nil(t, result.NodeResults["c"])
}

func TestExecutor_FailurePolicyRollbackRunsOnce(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		if step.ID == "deploy" {
			return "", errors.New("deploy failed")
		}
		return "ok", nil
	}}
	e, _ := newTestExecutor(fake)

	deploy := shellStep("deploy")
	deploy.OnFailure = models.FailureRollback
	template := linearTemplate("t1", shellStep("prep"), deploy)
	template.RollbackSteps = []models.ActionStep{shellStep("undo-1"), shellStep("undo-2")}

	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, result.Status)
	assert.True(t, result.RollbackExecuted)
	assert.Equal(t, []string{"prep", "deploy", "undo-1", "undo-2"}, fake.called())
	assert.Equal(t, models.NodeSuccess, result.NodeResults["undo-1"].Status)
}

func TestExecutor_RollbackFailureDoesNotRecurse(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		if step.ID == "deploy" || step.ID == "undo-1" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}}
	e, _ := newTestExecutor(fake)

	deploy := shellStep("deploy")
	deploy.OnFailure = models.FailureRollback
	template := linearTemplate("t1", deploy)
	template.RollbackSteps = []models.ActionStep{shellStep("undo-1"), shellStep("undo-2")}

	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, result.Status)
	assert.True(t, result.RollbackExecuted)
	// A failing rollback step is recorded and the remaining steps still run
	assert.Equal(t, models.NodeFailed, result.NodeResults["undo-1"].Status)
	assert.Equal(t, models.NodeSuccess, result.NodeResults["undo-2"].Status)
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}}
	e, _ := newTestExecutor(fake)

	flaky := shellStep("flaky")
	flaky.Retries = 2
	template := linearTemplate("t1", flaky)

	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, 3, result.NodeResults["flaky"].Attempts)
}

func TestExecutor_RetriesExhaustedFailsNode(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		return "", errors.New("always broken")
	}}
	e, _ := newTestExecutor(fake)

	flaky := shellStep("flaky")
	flaky.Retries = 2
	template := linearTemplate("t1", flaky)

	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, result.Status)
	assert.Equal(t, 3, result.NodeResults["flaky"].Attempts)
	assert.Equal(t, 3, fake.callCount())
}

func TestExecutor_BranchSkipsUntakenPath(t *testing.T) {
	condition := &fakeExecutor{kind: models.ActionCondition, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		return BranchFalse, nil
	}}
	shell := &fakeExecutor{kind: models.ActionShell}
	e, _ := newTestExecutor(condition, shell)

	g := NewGraph()
	require.NoError(t, g.AddNode(models.ActionStep{ID: "check", Kind: models.ActionCondition}))
	require.NoError(t, g.AddNode(shellStep("when-true")))
	require.NoError(t, g.AddNode(shellStep("when-false")))
	require.NoError(t, g.AddNode(shellStep("after-true")))
	require.NoError(t, g.AddEdge("check", "when-true", BranchTrue))
	require.NoError(t, g.AddEdge("check", "when-false", BranchFalse))
	require.NoError(t, g.AddEdge("when-true", "after-true", ""))

	result, err := e.ExecuteGraph(context.Background(), "w1", g, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, models.NodeSuccess, result.NodeResults["when-false"].Status)
	assert.Equal(t, models.NodeSkipped, result.NodeResults["when-true"].Status)
	// Skips cascade: downstream of a skipped node is skipped too
	assert.Equal(t, models.NodeSkipped, result.NodeResults["after-true"].Status)
	assert.Equal(t, []string{"when-false"}, shell.called())
}

func TestExecutor_GuardConditionSkipsStep(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell}
	e, _ := newTestExecutor(fake)

	guarded := shellStep("guarded")
	guarded.Guard = &models.GuardCondition{
		Variable: "issue.metric_value",
		Operator: models.ConditionGreaterThan,
		Value:    90,
	}
	template := linearTemplate("t1", guarded, shellStep("always"))

	result, err := e.ExecuteTemplate(context.Background(), template,
		map[string]interface{}{"issue.metric_value": 85.0})

	require.NoError(t, err)
	// The skip never engages the step's failure policy: the run stays on
	// track, downstream steps still execute
	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, models.NodeSkipped, result.NodeResults["guarded"].Status)
	assert.Equal(t, []string{"always"}, fake.called())
}

func TestExecutor_GuardSkipWithAbortPolicyCompletesRun(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell}
	e, _ := newTestExecutor(fake)

	guarded := shellStep("guarded")
	guarded.OnFailure = models.FailureAbort
	guarded.Guard = &models.GuardCondition{
		Variable: "issue.metric_value",
		Operator: models.ConditionGreaterThan,
		Value:    90,
	}
	template := linearTemplate("t1", guarded, shellStep("always"))

	result, err := e.ExecuteTemplate(context.Background(), template,
		map[string]interface{}{"issue.metric_value": 85.0})

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Status)
	assert.Equal(t, models.NodeSkipped, result.NodeResults["guarded"].Status)
	assert.Equal(t, models.NodeSuccess, result.NodeResults["always"].Status)
}

func TestExecutor_StepTimeout(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	e, _ := newTestExecutor(fake)

	slow := shellStep("slow")
	slow.TimeoutSeconds = 1
	template := linearTemplate("t1", slow)

	start := time.Now()
	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, result.Status)
	assert.Contains(t, result.NodeResults["slow"].Error, "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecutor_CancelStopsRun(t *testing.T) {
	started := make(chan struct{})
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		if step.ID == "long" {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}}
	e, _ := newTestExecutor(fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	template := linearTemplate("t1", shellStep("long"), shellStep("after"))

	done := make(chan *models.WorkflowExecutionContext, 1)
	go func() {
		result, err := e.ExecuteTemplate(ctx, template, nil)
		require.NoError(t, err)
		done <- result
	}()

	<-started
	cancel()

	result := <-done
	assert.Equal(t, models.RunCancelled, result.Status)
	assert.NotContains(t, fake.called(), "after")
}

func TestExecutor_CancelByExecutionID(t *testing.T) {
	started := make(chan struct{})
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	e, _ := newTestExecutor(fake)

	template := linearTemplate("t1", shellStep("long"))

	done := make(chan *models.WorkflowExecutionContext, 1)
	go func() {
		result, err := e.ExecuteTemplate(context.Background(), template, nil)
		require.NoError(t, err)
		done <- result
	}()

	<-started
	ids := e.runIDs()
	require.Len(t, ids, 1)
	assert.NoError(t, e.Cancel(ids[0]))

	result := <-done
	assert.Equal(t, models.RunCancelled, result.Status)

	// The run was dropped from tracking on completion
	assert.ErrorIs(t, e.Cancel(ids[0]), ErrRunNotFound)
	assert.ErrorIs(t, e.Cancel("missing"), ErrRunNotFound)
}

func TestExecutor_StatusSnapshotsInFlightRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeExecutor{kind: models.ActionShell, fn: func(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
		close(started)
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	e, _ := newTestExecutor(fake)

	template := linearTemplate("t1", shellStep("a"))

	done := make(chan *models.WorkflowExecutionContext, 1)
	go func() {
		result, err := e.ExecuteTemplate(context.Background(), template, nil)
		require.NoError(t, err)
		done <- result
	}()

	<-started
	ids := e.runIDs()
	require.Len(t, ids, 1)

	snapshot, err := e.Status(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, snapshot.Status)
	assert.Equal(t, models.NodeRunning, snapshot.NodeResults["a"].Status)

	// Snapshots are copies, not views into live state
	snapshot.NodeResults["a"].Status = models.NodeFailed
	again, err := e.Status(ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.NodeRunning, again.NodeResults["a"].Status)

	close(release)
	<-done

	_, err = e.Status("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestExecutor_FinishedRunDroppedFromTracking(t *testing.T) {
	fake := &fakeExecutor{kind: models.ActionShell}
	e, _ := newTestExecutor(fake)

	result, err := e.ExecuteTemplate(context.Background(), linearTemplate("t1", shellStep("a")), nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, result.Status)

	// The returned snapshot is the caller's record; the engine retains
	// nothing for finished runs
	assert.Empty(t, e.runIDs())
	_, err = e.Status(result.ExecutionID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, e.Cancel(result.ExecutionID), ErrRunNotFound)
}

func TestExecutor_UnknownActionKindFailsNode(t *testing.T) {
	e, _ := newTestExecutor() // empty registry

	template := linearTemplate("t1", shellStep("a"))
	result, err := e.ExecuteTemplate(context.Background(), template, nil)

	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, result.Status)
	assert.Equal(t, models.NodeFailed, result.NodeResults["a"].Status)
}
