package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics exported on the health server's /metrics endpoint.
var (
	DetectionCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remedy_detection_cycles_total",
		Help: "Number of completed detection cycles",
	})

	IssuesDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remedy_issues_detected_total",
		Help: "Issues detected, by pattern",
	}, []string{"pattern"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remedy_trigger_decisions_total",
		Help: "Auto-trigger decisions, by outcome",
	}, []string{"action"})

	SafetyBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remedy_safety_blocks_total",
		Help: "Guardrail blocks, by guardrail",
	}, []string{"guardrail"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remedy_runs_total",
		Help: "Workflow runs reaching a terminal status",
	}, []string{"status"})

	NodeDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "remedy_node_duration_seconds",
		Help:    "Time spent executing workflow nodes",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})
)
