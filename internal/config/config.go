package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the remediation service.
type Config struct {
	// Service addresses
	HealthPort string
	NatsURL    string

	// Redis (remediation outcome history). Empty disables Redis and falls
	// back to the in-memory store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Detection settings
	DetectionIntervalSeconds int
	Hosts                    []string
	PatternsPath             string
	TemplatesPath            string

	// Metrics feed settings
	MetricsFeedURL string // optional HTTP feed; system feed is always on

	// Safety guardrail settings
	BlastRadiusLimit         int // auto-executions per host per window
	BlastRadiusWindowSeconds int
	PatternRateLimit         int // auto-executions per pattern per window
	PatternRateWindowSeconds int

	// Workflow execution settings
	MaxConcurrentRuns   int
	DefaultStepTimeout  int // seconds
	ApprovalTimeoutMins int

	// Confidence scoring: how long a failed remediation penalises the same
	// pattern+host, in seconds.
	RecentFailureWindowSeconds int

	// Feature flags
	EnableAutoExecution bool

	// Notification settings
	SlackToken   string
	SlackChannel string
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	// Try multiple .env locations
	envPaths := []string{
		".env",
		"../.env",
		"/app/.env", // Docker
	}

	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Printf("Loaded config from: %s", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Printf("No .env file found, using environment variables")
	}

	config := &Config{
		HealthPort: getEnvOrDefault("HEALTH_PORT", "8082"),
		NatsURL:    getEnvOrDefault("NATS_URL", "nats://localhost:4222"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseIntOrDefault("REDIS_DB", 0),

		DetectionIntervalSeconds: parseIntOrDefault("DETECTION_INTERVAL_SECONDS", 30),
		Hosts:                    splitList(getEnvOrDefault("HOSTS", "localhost")),
		PatternsPath:             getEnvOrDefault("PATTERNS_PATH", "configs/patterns.yaml"),
		TemplatesPath:            getEnvOrDefault("TEMPLATES_PATH", "configs/templates.yaml"),

		MetricsFeedURL: os.Getenv("METRICS_FEED_URL"),

		BlastRadiusLimit:         parseIntOrDefault("BLAST_RADIUS_LIMIT", 3),
		BlastRadiusWindowSeconds: parseIntOrDefault("BLAST_RADIUS_WINDOW_SECONDS", 600),
		PatternRateLimit:         parseIntOrDefault("PATTERN_RATE_LIMIT", 5),
		PatternRateWindowSeconds: parseIntOrDefault("PATTERN_RATE_WINDOW_SECONDS", 600),

		MaxConcurrentRuns:   parseIntOrDefault("MAX_CONCURRENT_RUNS", 10),
		DefaultStepTimeout:  parseIntOrDefault("DEFAULT_STEP_TIMEOUT_SECONDS", 300), // 5 minutes
		ApprovalTimeoutMins: parseIntOrDefault("APPROVAL_TIMEOUT_MINUTES", 30),

		RecentFailureWindowSeconds: parseIntOrDefault("RECENT_FAILURE_WINDOW_SECONDS", 3600),

		EnableAutoExecution: getEnvOrDefault("ENABLE_AUTO_EXECUTION", "true") == "true",

		SlackToken:   os.Getenv("SLACK_TOKEN"),
		SlackChannel: getEnvOrDefault("SLACK_CHANNEL", "#ops-remediation"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.HealthPort == "" {
		return fmt.Errorf("HEALTH_PORT is required")
	}

	if c.DetectionIntervalSeconds < 1 {
		return fmt.Errorf("DETECTION_INTERVAL_SECONDS must be at least 1")
	}

	if len(c.Hosts) == 0 {
		return fmt.Errorf("HOSTS must list at least one host")
	}

	if c.BlastRadiusLimit < 1 {
		return fmt.Errorf("BLAST_RADIUS_LIMIT must be at least 1")
	}

	if c.PatternRateLimit < 1 {
		return fmt.Errorf("PATTERN_RATE_LIMIT must be at least 1")
	}

	if c.MaxConcurrentRuns < 1 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be at least 1")
	}

	if c.DefaultStepTimeout < 1 {
		return fmt.Errorf("DEFAULT_STEP_TIMEOUT_SECONDS must be at least 1")
	}

	return nil
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
