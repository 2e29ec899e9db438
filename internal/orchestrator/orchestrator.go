package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/e-m-dev/remedy/internal/actions"
	"github.com/e-m-dev/remedy/internal/approval"
	"github.com/e-m-dev/remedy/internal/catalog"
	"github.com/e-m-dev/remedy/internal/confidence"
	"github.com/e-m-dev/remedy/internal/config"
	"github.com/e-m-dev/remedy/internal/detector"
	"github.com/e-m-dev/remedy/internal/eventbus"
	"github.com/e-m-dev/remedy/internal/health"
	"github.com/e-m-dev/remedy/internal/history"
	"github.com/e-m-dev/remedy/internal/metrics"
	"github.com/e-m-dev/remedy/internal/metricsfeed"
	"github.com/e-m-dev/remedy/internal/models"
	"github.com/e-m-dev/remedy/internal/safety"
	"github.com/e-m-dev/remedy/internal/trigger"
	"github.com/e-m-dev/remedy/internal/workflow"
)

// Orchestrator manages the remediation pipeline lifecycle: detection cycles,
// trigger decisions, workflow runs, and outcome feedback.
//
// Lifecycle:
//  1. Start() - Loads catalogs, builds the pipeline, connects NATS and Redis
//  2. Run() - Starts the detection loop and blocks until context is cancelled
//  3. Stop() - Gracefully drains in-flight runs and closes all connections
//
// The orchestrator implements graceful degradation:
//   - NATS failure: pipeline runs with event publishing disabled and no
//     operator command channel (kill switch only reachable in-process)
//   - Redis failure: outcome history falls back to the in-memory store
//     (confidence resets across restarts)
//   - Docker/Slack unavailable: those action kinds are not registered and
//     templates using them fail at dispatch
type Orchestrator struct {
	config *config.Config

	// Core pipeline
	catalog    *catalog.Catalog
	detector   *detector.Detector
	guardrails *safety.Guardrails
	store      history.Store
	trigger    *trigger.Manager
	approvals  *approval.Service
	executor   *workflow.Executor
	notifier   *actions.NotificationExecutor

	// Event bus connections
	natsPublisher  *eventbus.Publisher
	natsSubscriber *eventbus.Subscriber
	sink           eventbus.Sink

	// Run concurrency: one slot per in-flight workflow run
	runSlots chan struct{}
	runs     sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator instance with the provided
// configuration. The orchestrator is not started until Start() is called.
func NewOrchestrator(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		runSlots: make(chan struct{}, cfg.MaxConcurrentRuns),
	}
}

// Start loads the catalogs and builds the detection-to-remediation pipeline.
// This method must be called before Run().
func (o *Orchestrator) Start() error {
	log.Printf("Starting Remedy Orchestrator...")

	cat, err := catalog.Load(o.config.PatternsPath, o.config.TemplatesPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogs (required): %w", err)
	}
	o.catalog = cat

	o.connectNATS() // Optional - warnings logged on failure
	o.connectHistoryStore()

	o.guardrails = safety.NewGuardrails(safety.Limits{
		BlastRadiusLimit:  o.config.BlastRadiusLimit,
		BlastRadiusWindow: time.Duration(o.config.BlastRadiusWindowSeconds) * time.Second,
		PatternRateLimit:  o.config.PatternRateLimit,
		PatternRateWindow: time.Duration(o.config.PatternRateWindowSeconds) * time.Second,
	})

	o.approvals = approval.NewService(o.sink)
	o.trigger = trigger.NewManager(o.catalog, confidence.NewScorer(), o.guardrails, o.store)

	o.initializeDetector()
	o.initializeExecutor()

	// Operator commands arrive over NATS if it is up
	if o.natsPublisher != nil {
		o.startSubscriber()
	}

	health.StartServer(o.config.HealthPort)

	log.Printf("Remedy Orchestrator started successfully")
	return nil
}

// connectNATS establishes the event bus connection. Publishing is optional:
// without NATS the pipeline still detects and remediates, but emits no events
// and accepts no operator commands.
func (o *Orchestrator) connectNATS() {
	log.Printf("Connecting to NATS at: %s", o.config.NatsURL)

	publisher, err := eventbus.NewPublisher(o.config.NatsURL)
	if err != nil {
		log.Printf("Warning: failed to connect to NATS: %v", err)
		log.Printf("Events will not be published and operator commands are unavailable")
		o.sink = eventbus.Noop{}
		return
	}

	o.natsPublisher = publisher
	o.sink = publisher
}

// connectHistoryStore wires the remediation outcome history. Redis is
// preferred; the in-memory store is the fallback so confidence scoring always
// has a backend.
func (o *Orchestrator) connectHistoryStore() {
	failureWindow := time.Duration(o.config.RecentFailureWindowSeconds) * time.Second

	if o.config.RedisAddr == "" {
		log.Printf("REDIS_ADDR not set, using in-memory outcome history")
		o.store = history.NewMemoryStore(failureWindow)
		return
	}

	store, err := history.NewRedisStore(o.config.RedisAddr, o.config.RedisPassword, o.config.RedisDB, failureWindow)
	if err != nil {
		log.Printf("Warning: failed to connect to Redis: %v", err)
		log.Printf("Outcome history will not survive restarts")
		o.store = history.NewMemoryStore(failureWindow)
		return
	}

	o.store = store
}

// initializeDetector builds the metrics feed chain and the pattern detector.
func (o *Orchestrator) initializeDetector() {
	feeds := []metricsfeed.Feed{metricsfeed.NewSystemFeed("localhost")}
	if o.config.MetricsFeedURL != "" {
		log.Printf("Using HTTP metrics feed at: %s", o.config.MetricsFeedURL)
		feeds = append(feeds, metricsfeed.NewHTTPFeed(o.config.MetricsFeedURL))
	}

	o.detector = detector.NewDetector(o.catalog.Patterns(), metricsfeed.NewComposite(feeds...))
	log.Printf("Detector initialized with %d patterns across %d hosts",
		len(o.catalog.Patterns()), len(o.config.Hosts))
}

// initializeExecutor registers the action executors and creates the workflow
// engine. Executors with unavailable backends are skipped with a warning.
func (o *Orchestrator) initializeExecutor() {
	registry := actions.NewRegistry()
	registry.Register(actions.NewShellExecutor())
	registry.Register(actions.NewScriptExecutor())
	registry.Register(actions.NewHTTPExecutor())
	registry.Register(actions.NewDatabaseExecutor())
	registry.Register(actions.NewKubernetesExecutor())
	registry.Register(actions.NewWaitExecutor())
	registry.Register(actions.NewConditionExecutor())
	registry.Register(actions.NewApprovalExecutor(o.approvals))

	if docker, err := actions.NewDockerExecutor(); err != nil {
		log.Printf("Warning: Docker unavailable: %v", err)
		log.Printf("Templates with docker steps will fail at dispatch")
	} else {
		registry.Register(docker)
	}

	if o.config.SlackToken != "" {
		o.notifier = actions.NewNotificationExecutor(o.config.SlackToken, o.config.SlackChannel)
		registry.Register(o.notifier)
	} else {
		log.Printf("SLACK_TOKEN not set, notifications disabled")
	}

	o.executor = workflow.NewExecutor(registry, o.sink,
		time.Duration(o.config.DefaultStepTimeout)*time.Second)
	log.Printf("Workflow executor initialized (%d action kinds, max %d concurrent runs)",
		len(registry.Kinds()), o.config.MaxConcurrentRuns)
}

// startSubscriber wires operator kill switch commands and external approval
// resolutions from NATS into the pipeline.
func (o *Orchestrator) startSubscriber() {
	subscriber, err := eventbus.NewSubscriber(o.config.NatsURL, o.guardrails, o.approvals)
	if err != nil {
		log.Printf("Warning: failed to create NATS subscriber: %v", err)
		return
	}

	if err := subscriber.Start(); err != nil {
		log.Printf("Warning: failed to start NATS subscriber: %v", err)
		subscriber.Close()
		return
	}

	o.natsSubscriber = subscriber
}

// Run starts the detection loop and blocks until the context is cancelled.
// Each cycle samples every pattern across every configured host, then routes
// new issues through the trigger decision table.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := time.Duration(o.config.DetectionIntervalSeconds) * time.Second
	log.Printf("Detection loop running every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Shutdown signal received")
			return ctx.Err()
		case <-ticker.C:
			o.runDetectionCycle(ctx)
		}
	}
}

func (o *Orchestrator) runDetectionCycle(ctx context.Context) {
	issues := o.detector.RunCycle(ctx, o.config.Hosts)
	metrics.DetectionCyclesTotal.Inc()

	for _, issue := range issues {
		o.handleIssue(ctx, issue)
	}
}

// handleIssue routes one newly detected issue through the decision table and
// acts on the outcome.
func (o *Orchestrator) handleIssue(ctx context.Context, issue *models.DetectedIssue) {
	log.Printf("[Pipeline] Issue detected: %s on %s (severity %s, %s=%.2f)",
		issue.PatternID, issue.Host, issue.Severity, issue.MetricKey, issue.MetricValue)

	metrics.IssuesDetectedTotal.WithLabelValues(issue.PatternID).Inc()
	o.publish(eventbus.SubjectIssueDetected, issue)

	decision := o.trigger.Decide(ctx, issue)
	metrics.DecisionsTotal.WithLabelValues(string(decision.Action)).Inc()
	if !decision.Safety.Allowed {
		metrics.SafetyBlocksTotal.WithLabelValues(decision.Safety.Guardrail).Inc()
	}

	o.publish(eventbus.SubjectTriggerDecided, struct {
		IssueID string `json:"issue_id"`
		trigger.Decision
	}{issue.ID, decision})

	log.Printf("[Pipeline] Decision for %s: %s (%s)", issue.PatternID, decision.Action, decision.Reason)

	// The global flag downgrades autonomous execution without touching the
	// decision table itself
	action := decision.Action
	if action == trigger.ActionAutoExecute && !o.config.EnableAutoExecution {
		log.Printf("[Pipeline] Auto-execution disabled by config, queueing for approval")
		action = trigger.ActionQueueApproval
	}

	switch action {
	case trigger.ActionAutoExecute:
		o.launchRun(ctx, issue, decision.TemplateID, false)

	case trigger.ActionQueueApproval:
		if err := o.detector.Acknowledge(issue.ID); err != nil {
			log.Printf("Warning: failed to acknowledge issue %s: %v", issue.ID, err)
		}
		o.launchRun(ctx, issue, decision.TemplateID, true)

	default: // notify only
		o.notify(ctx, fmt.Sprintf(":warning: %s on %s (%s=%.2f): %s",
			issue.PatternID, issue.Host, issue.MetricKey, issue.MetricValue, decision.Reason))
	}
}

// launchRun starts a workflow run for the issue on its own goroutine, bounded
// by the run concurrency limit. Gated runs get an approval step prepended so
// the template only executes once an operator approves.
func (o *Orchestrator) launchRun(ctx context.Context, issue *models.DetectedIssue, templateID string, gated bool) {
	template, ok := o.catalog.Template(templateID)
	if !ok {
		log.Printf("Warning: template %s vanished between decision and launch", templateID)
		return
	}

	if gated {
		template = o.withApprovalGate(template, issue)
	} else {
		// Guardrail windows only count runs that actually launch
		o.guardrails.RecordExecution(issue.PatternID, issue.Host)
	}

	triggerData := map[string]interface{}{
		"issue.id":           issue.ID,
		"issue.pattern_id":   issue.PatternID,
		"issue.host":         issue.Host,
		"issue.metric_key":   issue.MetricKey,
		"issue.metric_value": issue.MetricValue,
		"issue.threshold":    issue.Threshold,
	}

	o.runs.Add(1)
	go func() {
		defer o.runs.Done()

		select {
		case o.runSlots <- struct{}{}:
			defer func() { <-o.runSlots }()
		case <-ctx.Done():
			return
		}

		if err := o.detector.StartRemediation(issue.ID); err != nil {
			log.Printf("Warning: failed to mark issue %s remediating: %v", issue.ID, err)
		}

		result, err := o.executor.ExecuteTemplate(ctx, template, triggerData)
		if err != nil {
			// Graph rejected before any step ran
			o.recordOutcome(issue, false, err.Error())
			return
		}

		switch result.Status {
		case models.RunCompleted:
			o.recordOutcome(issue, true, fmt.Sprintf("remediated by %s (run %s)", template.ID, result.ExecutionID))
		case models.RunCancelled:
			o.recordOutcome(issue, false, "remediation run cancelled")
		default:
			o.recordOutcome(issue, false, "remediation run failed: "+result.Error)
		}
	}()
}

// withApprovalGate returns a copy of the template with an approval step at the
// head of the chain.
func (o *Orchestrator) withApprovalGate(template *models.RemediationTemplate, issue *models.DetectedIssue) *models.RemediationTemplate {
	gate := models.ActionStep{
		ID:   "approval-gate",
		Name: "Operator approval",
		Kind: models.ActionApproval,
		Config: map[string]interface{}{
			"message": fmt.Sprintf("Approve remediation %s for %s on %s?",
				template.ID, issue.PatternID, issue.Host),
			"timeout_minutes": o.config.ApprovalTimeoutMins,
		},
		OnFailure: models.FailureAbort,
	}

	gated := *template
	gated.Steps = append([]models.ActionStep{gate}, template.Steps...)
	return &gated
}

// recordOutcome feeds the run result back into the confidence history and
// closes out the issue.
func (o *Orchestrator) recordOutcome(issue *models.DetectedIssue, success bool, summary string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.store.RecordOutcome(ctx, issue.PatternID, issue.Host, success); err != nil {
		log.Printf("Warning: failed to record outcome for %s: %v", issue.PatternID, err)
	}

	if success {
		if err := o.detector.Resolve(issue.ID, summary); err != nil {
			log.Printf("Warning: failed to resolve issue %s: %v", issue.ID, err)
		}
		o.publish(eventbus.SubjectIssueResolved, issue)
		log.Printf("[Pipeline] Issue %s resolved: %s", issue.PatternID, summary)
		return
	}

	if err := o.detector.Escalate(issue.ID, summary); err != nil {
		log.Printf("Warning: failed to escalate issue %s: %v", issue.ID, err)
	}
	o.publish(eventbus.SubjectIssueEscalated, issue)
	o.notify(ctx, fmt.Sprintf(":rotating_light: Escalated: %s on %s. %s",
		issue.PatternID, issue.Host, summary))
	log.Printf("[Pipeline] Issue %s escalated: %s", issue.PatternID, summary)
}

// notify posts to Slack when configured. Notification failures never affect
// the pipeline.
func (o *Orchestrator) notify(ctx context.Context, message string) {
	if o.notifier == nil {
		return
	}

	step := models.ActionStep{
		ID:     "pipeline-notify",
		Kind:   models.ActionNotification,
		Config: map[string]interface{}{"message": message},
	}
	if _, err := o.notifier.Execute(ctx, step, nil); err != nil {
		log.Printf("Warning: failed to send notification: %v", err)
	}
}

func (o *Orchestrator) publish(subject string, payload interface{}) {
	if err := o.sink.Publish(subject, payload); err != nil {
		log.Printf("Warning: failed to publish to %s: %v", subject, err)
	}
}

// Detector exposes the issue tracker for API surfaces and tests.
func (o *Orchestrator) Detector() *detector.Detector {
	return o.detector
}

// Executor exposes the workflow engine for run status and cancellation.
func (o *Orchestrator) Executor() *workflow.Executor {
	return o.executor
}

// Stop gracefully drains in-flight runs and closes all connections.
func (o *Orchestrator) Stop() error {
	log.Printf("Stopping Orchestrator...")

	// Wait for in-flight runs to observe cancellation and finish
	done := make(chan struct{})
	go func() {
		o.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Printf("Warning: timed out waiting for in-flight runs")
	}

	if o.natsSubscriber != nil {
		o.natsSubscriber.Close()
	}

	if o.natsPublisher != nil {
		o.natsPublisher.Close()
	}

	if o.store != nil {
		if err := o.store.Close(); err != nil {
			log.Printf("Error closing outcome history store: %v", err)
		}
	}

	log.Printf("Orchestrator stopped successfully")
	return nil
}
