package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/e-m-dev/remedy/internal/actions"
	"github.com/e-m-dev/remedy/internal/eventbus"
	"github.com/e-m-dev/remedy/internal/metrics"
	"github.com/e-m-dev/remedy/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrRunNotFound means no run exists for the given execution id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished means the run already reached a terminal status.
	ErrRunFinished = errors.New("run already finished")
)

// RunEvent is published at run start and completion.
type RunEvent struct {
	ExecutionID string           `json:"execution_id"`
	WorkflowID  string           `json:"workflow_id"`
	Status      models.RunStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	Timestamp   int64            `json:"timestamp"`
}

// NodeEvent is published at every node boundary so external consumers can
// render progress or detect stuck approvals.
type NodeEvent struct {
	ExecutionID string            `json:"execution_id"`
	NodeID      string            `json:"node_id"`
	Kind        models.ActionKind `json:"kind"`
	Status      models.NodeStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
	Timestamp   int64             `json:"timestamp"`
}

// Executor runs remediation procedures as directed graphs of steps. Each run
// executes on its own goroutine; many runs proceed concurrently and
// independently. The executor owns each run's context exclusively for the
// run's lifetime and hands out snapshots only.
type Executor struct {
	registry       *actions.Registry
	sink           eventbus.Sink
	defaultTimeout time.Duration

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	mu     sync.Mutex
	exec   *models.WorkflowExecutionContext
	cancel context.CancelFunc
}

// NewExecutor creates a workflow executor dispatching steps through the given
// registry and publishing run events through the sink.
func NewExecutor(registry *actions.Registry, sink eventbus.Sink, defaultTimeout time.Duration) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	return &Executor{
		registry:       registry,
		sink:           sink,
		defaultTimeout: defaultTimeout,
		runs:           make(map[string]*runState),
	}
}

// ExecuteTemplate runs a template's step list as a linear graph, with the
// template's rollback steps on standby.
func (e *Executor) ExecuteTemplate(ctx context.Context, template *models.RemediationTemplate, triggerData map[string]interface{}) (*models.WorkflowExecutionContext, error) {
	graph, err := FromTemplate(template)
	if err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", template.ID, err)
	}
	return e.ExecuteGraph(ctx, template.ID, graph, template.RollbackSteps, triggerData)
}

// ExecuteGraph validates and runs a workflow graph to a terminal status. A
// graph that fails validation is rejected before any step executes. The
// returned context is a snapshot of the terminal state.
func (e *Executor) ExecuteGraph(ctx context.Context, workflowID string, graph *Graph, rollbackSteps []models.ActionStep, triggerData map[string]interface{}) (*models.WorkflowExecutionContext, error) {
	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("graph validation failed for %s: %w", workflowID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec := &models.WorkflowExecutionContext{
		ExecutionID: uuid.NewString(),
		WorkflowID:  workflowID,
		Status:      models.RunRunning,
		NodeResults: make(map[string]*models.NodeExecutionResult),
		Variables:   make(map[string]interface{}),
		StartedAt:   time.Now().UTC(),
	}
	for key, value := range triggerData {
		exec.Variables[key] = value
	}
	exec.Variables[actions.VarRunID] = exec.ExecutionID

	state := &runState{exec: exec, cancel: cancel}
	e.mu.Lock()
	e.runs[exec.ExecutionID] = state
	e.mu.Unlock()

	log.Printf("[Workflow] Run %s started (workflow %s, %d nodes)",
		exec.ExecutionID, workflowID, graph.Len())
	e.publishRun(state)

	e.walk(runCtx, state, graph, order, rollbackSteps)

	now := time.Now().UTC()
	state.mu.Lock()
	exec.CompletedAt = &now
	exec.CurrentNode = ""
	snapshot := snapshotExec(exec)
	state.mu.Unlock()

	metrics.RunsTotal.WithLabelValues(string(snapshot.Status)).Inc()
	e.publishRun(state)
	log.Printf("[Workflow] Run %s finished: %s", exec.ExecutionID, snapshot.Status)

	// The returned snapshot and the published event are the caller's record;
	// the engine only tracks in-flight runs
	e.mu.Lock()
	delete(e.runs, exec.ExecutionID)
	e.mu.Unlock()

	return snapshot, nil
}

// walk executes nodes in topological order, applying branch skipping, guard
// conditions, per-step retries, and failure policies.
func (e *Executor) walk(ctx context.Context, state *runState, graph *Graph, order []string, rollbackSteps []models.ActionStep) {
	exec := state.exec

	for _, nodeID := range order {
		if ctx.Err() != nil {
			e.finish(state, models.RunCancelled, "run cancelled: "+ctx.Err().Error())
			return
		}

		node, _ := graph.Node(nodeID)

		state.mu.Lock()
		exec.CurrentNode = nodeID
		state.mu.Unlock()

		if e.shouldSkip(state, graph, node) {
			e.recordSkip(state, node)
			continue
		}

		result := e.executeNode(ctx, state, node)

		// A guard-skipped node is not a failure and never engages the
		// failure policy
		if result.Status == models.NodeSuccess || result.Status == models.NodeSkipped {
			continue
		}

		if ctx.Err() != nil {
			e.finish(state, models.RunCancelled, "run cancelled: "+ctx.Err().Error())
			return
		}

		// Failure: the step's declared policy decides the outcome. One
		// node's failure never aborts the walk by itself.
		policy := node.Step.OnFailure
		if policy == "" {
			policy = models.FailureAbort
		}

		switch policy {
		case models.FailureContinue:
			log.Printf("[Workflow] Run %s: node %s failed, policy=continue", exec.ExecutionID, nodeID)
			continue

		case models.FailureRollback:
			e.finish(state, models.RunFailed,
				fmt.Sprintf("node %s failed: %s", nodeID, result.Error))
			e.runRollback(state, rollbackSteps)
			return

		default: // abort
			e.finish(state, models.RunFailed,
				fmt.Sprintf("node %s failed: %s", nodeID, result.Error))
			return
		}
	}

	if ctx.Err() != nil {
		e.finish(state, models.RunCancelled, "run cancelled: "+ctx.Err().Error())
		return
	}

	// Every non-skipped node succeeded or was permitted to fail
	e.finish(state, models.RunCompleted, "")
}

// shouldSkip applies conditional-edge routing: a node fed by labeled edges
// runs only when at least one labeled edge's upstream condition produced the
// matching branch value. A node whose feeders were all skipped is skipped too.
func (e *Executor) shouldSkip(state *runState, graph *Graph, node *Node) bool {
	incoming := graph.Incoming(node.ID)
	if len(incoming) == 0 {
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	satisfied := false
	for _, edge := range incoming {
		upstream, ok := state.exec.NodeResults[edge.From]
		if !ok || upstream.Status == models.NodeSkipped {
			continue
		}
		if edge.Branch == "" || upstream.Output == edge.Branch {
			satisfied = true
			break
		}
	}

	return !satisfied
}

// executeNode dispatches one node with its timeout and retry policy.
func (e *Executor) executeNode(ctx context.Context, state *runState, node *Node) *models.NodeExecutionResult {
	exec := state.exec
	step := node.Step

	result := &models.NodeExecutionResult{
		NodeID:    node.ID,
		Status:    models.NodeRunning,
		StartedAt: time.Now().UTC(),
	}
	if step.Kind == models.ActionApproval {
		result.Status = models.NodeWaitingApproval
	}

	state.mu.Lock()
	exec.NodeResults[node.ID] = result
	state.mu.Unlock()
	e.publishNode(exec.ExecutionID, node, result)

	executor, err := e.registry.Get(step.Kind)
	if err != nil {
		e.completeNode(state, node, result, "", err)
		return result
	}

	// Guard condition gates the step on the variable bag
	if step.Guard != nil && !e.guardHolds(state, step.Guard) {
		state.mu.Lock()
		result.Status = models.NodeSkipped
		result.CompletedAt = time.Now().UTC()
		state.mu.Unlock()
		e.publishNode(exec.ExecutionID, node, result)
		return result
	}

	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	attempts := step.Retries + 1
	var output string

	for attempt := 1; attempt <= attempts; attempt++ {
		state.mu.Lock()
		result.Attempts = attempt
		state.mu.Unlock()

		output, err = e.dispatch(ctx, executor, step, state, timeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			// Parent cancellation propagates; do not burn retries on it
			break
		}
		if attempt < attempts {
			log.Printf("[Workflow] Run %s: node %s attempt %d/%d failed: %v",
				exec.ExecutionID, node.ID, attempt, attempts, err)
		}
	}

	e.completeNode(state, node, result, output, err)
	return result
}

// dispatch runs a single attempt bounded by the step's timeout. Approval
// gates manage their own deadline, so they only inherit run cancellation.
func (e *Executor) dispatch(ctx context.Context, executor actions.NodeExecutor, step models.ActionStep, state *runState, timeout time.Duration) (string, error) {
	state.mu.Lock()
	vars := make(map[string]interface{}, len(state.exec.Variables))
	for key, value := range state.exec.Variables {
		vars[key] = value
	}
	state.mu.Unlock()

	if step.Kind == models.ActionApproval {
		return executor.Execute(ctx, step, vars)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := executor.Execute(stepCtx, step, vars)
	if err != nil && stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = fmt.Errorf("step timed out after %s", timeout)
	}
	return output, err
}

func (e *Executor) completeNode(state *runState, node *Node, result *models.NodeExecutionResult, output string, err error) {
	state.mu.Lock()
	result.CompletedAt = time.Now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	if err != nil {
		result.Status = models.NodeFailed
		result.Error = err.Error()
	} else {
		result.Status = models.NodeSuccess
		result.Output = output
		// Node outputs feed later steps and conditions
		state.exec.Variables[node.ID+".output"] = output
	}
	state.mu.Unlock()

	metrics.NodeDurationSeconds.WithLabelValues(string(node.Step.Kind)).Observe(result.Duration.Seconds())
	e.publishNode(state.exec.ExecutionID, node, result)
}

func (e *Executor) recordSkip(state *runState, node *Node) {
	now := time.Now().UTC()
	result := &models.NodeExecutionResult{
		NodeID:      node.ID,
		Status:      models.NodeSkipped,
		StartedAt:   now,
		CompletedAt: now,
	}

	state.mu.Lock()
	state.exec.NodeResults[node.ID] = result
	state.mu.Unlock()
	e.publishNode(state.exec.ExecutionID, node, result)
}

func (e *Executor) guardHolds(state *runState, guard *models.GuardCondition) bool {
	state.mu.Lock()
	raw, ok := state.exec.Variables[guard.Variable]
	state.mu.Unlock()
	if !ok {
		return false
	}

	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case int:
		value = float64(v)
	default:
		return false
	}

	switch guard.Operator {
	case models.ConditionGreaterThan:
		return value > guard.Value
	case models.ConditionLessThan:
		return value < guard.Value
	case models.ConditionEqual:
		return value == guard.Value
	}
	return false
}

// runRollback executes the rollback steps in declared order, best-effort.
// Rollback runs at most once per run; rollback-step failures are logged and
// never recurse into further rollback.
func (e *Executor) runRollback(state *runState, steps []models.ActionStep) {
	state.mu.Lock()
	if state.exec.RollbackExecuted || len(steps) == 0 {
		state.mu.Unlock()
		return
	}
	state.exec.RollbackExecuted = true
	state.mu.Unlock()

	log.Printf("[Workflow] Run %s: executing %d rollback steps", state.exec.ExecutionID, len(steps))

	// Rollback proceeds even when the parent context is cancelled, bounded
	// by its own deadline, so a failed run is not left half-reverted
	rollbackCtx, cancel := context.WithTimeout(context.Background(), e.defaultTimeout)
	defer cancel()

	for _, step := range steps {
		node := &Node{ID: step.ID, Step: step}
		result := e.executeNode(rollbackCtx, state, node)
		if result.Status == models.NodeFailed {
			log.Printf("[Workflow] Run %s: rollback step %s failed: %s",
				state.exec.ExecutionID, step.ID, result.Error)
		}
	}
}

// finish records the terminal status once. Later calls are ignored so a run
// reaches exactly one terminal state.
func (e *Executor) finish(state *runState, status models.RunStatus, reason string) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.exec.Status.Terminal() {
		return
	}
	state.exec.Status = status
	state.exec.Error = reason
}

// Cancel stops an in-flight run. The cancellation propagates to whichever
// step is currently executing and the run terminates as Cancelled.
func (e *Executor) Cancel(executionID string) error {
	e.mu.Lock()
	state, ok := e.runs[executionID]
	e.mu.Unlock()

	if !ok {
		return ErrRunNotFound
	}

	state.mu.Lock()
	finished := state.exec.Status.Terminal()
	state.mu.Unlock()
	if finished {
		return ErrRunFinished
	}

	log.Printf("[Workflow] Run %s: cancellation requested", executionID)
	state.cancel()
	return nil
}

// Status returns a snapshot of an in-flight run. Finished runs are dropped
// from tracking once their terminal snapshot is published.
func (e *Executor) Status(executionID string) (*models.WorkflowExecutionContext, error) {
	e.mu.Lock()
	state, ok := e.runs[executionID]
	e.mu.Unlock()

	if !ok {
		return nil, ErrRunNotFound
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return snapshotExec(state.exec), nil
}

func (e *Executor) publishRun(state *runState) {
	state.mu.Lock()
	event := RunEvent{
		ExecutionID: state.exec.ExecutionID,
		WorkflowID:  state.exec.WorkflowID,
		Status:      state.exec.Status,
		Error:       state.exec.Error,
		Timestamp:   time.Now().Unix(),
	}
	state.mu.Unlock()

	subject := eventbus.SubjectRunStarted
	if event.Status.Terminal() {
		subject = eventbus.SubjectRunCompleted
	}
	if err := e.sink.Publish(subject, event); err != nil {
		log.Printf("Warning: failed to publish run event: %v", err)
	}
}

func (e *Executor) publishNode(executionID string, node *Node, result *models.NodeExecutionResult) {
	event := NodeEvent{
		ExecutionID: executionID,
		NodeID:      node.ID,
		Kind:        node.Step.Kind,
		Status:      result.Status,
		Error:       result.Error,
		Timestamp:   time.Now().Unix(),
	}
	if err := e.sink.Publish(eventbus.SubjectRunNode, event); err != nil {
		log.Printf("Warning: failed to publish node event: %v", err)
	}
}

// snapshotExec deep-copies the run context for callers outside the engine.
func snapshotExec(exec *models.WorkflowExecutionContext) *models.WorkflowExecutionContext {
	snapshot := *exec

	snapshot.NodeResults = make(map[string]*models.NodeExecutionResult, len(exec.NodeResults))
	for id, result := range exec.NodeResults {
		r := *result
		snapshot.NodeResults[id] = &r
	}

	snapshot.Variables = make(map[string]interface{}, len(exec.Variables))
	for key, value := range exec.Variables {
		snapshot.Variables[key] = value
	}

	return &snapshot
}
