package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/e-m-dev/remedy/internal/config"
	"github.com/e-m-dev/remedy/internal/orchestrator"
)

// main is the entry point for the Remedy service.
//
// Remedy is responsible for:
//   - Sampling metrics and matching them against detection patterns
//   - Scoring remediation confidence from historical outcomes
//   - Enforcing safety guardrails (kill switch, blast radius, pattern rate)
//   - Deciding per issue: auto-execute, queue for approval, or notify only
//   - Running remediation templates as workflow graphs with rollback
//   - Publishing pipeline events to NATS for dashboards and audit
//
// Lifecycle:
//  1. Load configuration from environment variables
//  2. Load pattern and template catalogs from YAML
//  3. Initialize orchestrator with the full pipeline
//  4. Start health check server and detection loop
//  5. Listen for shutdown signals (SIGINT, SIGTERM)
//  6. Drain in-flight runs and close connections on shutdown
func main() {
	log.Printf("Remedy starting...")

	// Load configuration from environment variables and .env file
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded successfully")
	log.Printf("  Health Port: %s", cfg.HealthPort)
	log.Printf("  NATS URL: %s", cfg.NatsURL)
	log.Printf("  Hosts: %v", cfg.Hosts)
	log.Printf("  Detection Interval: %ds", cfg.DetectionIntervalSeconds)
	log.Printf("  Auto-Execution Enabled: %v", cfg.EnableAutoExecution)
	log.Printf("  Max Concurrent Runs: %d", cfg.MaxConcurrentRuns)
	log.Printf("  Default Step Timeout: %ds", cfg.DefaultStepTimeout)

	// Create orchestrator to manage the pipeline lifecycle
	orch := orchestrator.NewOrchestrator(cfg)

	// Initialize catalogs, connections, and the pipeline
	if err := orch.Start(); err != nil {
		log.Fatalf("Failed to start orchestrator: %v", err)
	}

	// Setup graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for shutdown signals (Ctrl+C, Docker stop, k8s termination)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start the detection loop in background goroutine
	go func() {
		if err := orch.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Orchestrator error: %v", err)
		}
	}()

	// Block until shutdown signal received
	<-sigChan
	log.Printf("Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop the detection loop and in-flight runs
	cancel()

	// Drain runs and close all connections
	if err := orch.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Printf("Remedy stopped successfully")
}
