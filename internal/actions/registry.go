package actions

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/e-m-dev/remedy/internal/models"
)

// ErrUnknownKind means no executor is registered for a step's action kind.
var ErrUnknownKind = errors.New("no executor registered for action kind")

// NodeExecutor runs one kind of workflow step. Implementations must be
// idempotent-safe to retry up to the step's retry count and must honor
// context cancellation.
type NodeExecutor interface {
	Kind() models.ActionKind
	Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error)
}

// Registry maps action kinds to their executors. Populated at startup,
// read-only afterwards.
type Registry struct {
	executors map[models.ActionKind]NodeExecutor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[models.ActionKind]NodeExecutor),
	}
}

// Register adds an executor for its action kind.
func (r *Registry) Register(e NodeExecutor) {
	r.executors[e.Kind()] = e
	log.Printf("Registered step executor: %s", e.Kind())
}

// Get returns the executor for an action kind.
func (r *Registry) Get(kind models.ActionKind) (NodeExecutor, error) {
	e, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return e, nil
}

// Kinds returns the registered action kinds.
func (r *Registry) Kinds() []models.ActionKind {
	kinds := make([]models.ActionKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	return kinds
}

// Config helpers shared by executors.

func stringConfig(step models.ActionStep, key, defaultValue string) string {
	if v, ok := step.Config[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

func intConfig(step models.ActionStep, key string, defaultValue int) int {
	switch v := step.Config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultValue
}

func floatConfig(step models.ActionStep, key string, defaultValue float64) float64 {
	switch v := step.Config[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return defaultValue
}
