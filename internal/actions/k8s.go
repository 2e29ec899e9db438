package actions

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/e-m-dev/remedy/internal/models"
)

// KubernetesExecutor drives kubectl for cluster remediation steps (rollout
// restarts, scaling, pod deletion).
//
// Config: operation (restart|scale|delete_pod|apply), resource, namespace
// (default "default"), replicas (for scale), manifest (for apply).
type KubernetesExecutor struct {
	kubectlPath string
}

func NewKubernetesExecutor() *KubernetesExecutor {
	return &KubernetesExecutor{kubectlPath: "kubectl"}
}

func (e *KubernetesExecutor) Kind() models.ActionKind {
	return models.ActionKubernetes
}

func (e *KubernetesExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	operation := stringConfig(step, "operation", "")
	namespace := stringConfig(step, "namespace", "default")
	resource := stringConfig(step, "resource", "")

	var args []string
	switch operation {
	case "restart":
		if resource == "" {
			return "", fmt.Errorf("k8s step %q: resource is required", step.ID)
		}
		args = []string{"rollout", "restart", resource, "-n", namespace}

	case "scale":
		if resource == "" {
			return "", fmt.Errorf("k8s step %q: resource is required", step.ID)
		}
		replicas := intConfig(step, "replicas", -1)
		if replicas < 0 {
			return "", fmt.Errorf("k8s step %q: replicas is required for scale", step.ID)
		}
		args = []string{"scale", resource, fmt.Sprintf("--replicas=%d", replicas), "-n", namespace}

	case "delete_pod":
		if resource == "" {
			return "", fmt.Errorf("k8s step %q: resource is required", step.ID)
		}
		args = []string{"delete", "pod", resource, "-n", namespace}

	case "apply":
		manifest := stringConfig(step, "manifest", "")
		if manifest == "" {
			return "", fmt.Errorf("k8s step %q: manifest is required for apply", step.ID)
		}
		args = []string{"apply", "-n", namespace, "-f", "-"}
		return e.run(ctx, args, manifest)

	default:
		return "", fmt.Errorf("k8s step %q: unknown operation %q", step.ID, operation)
	}

	return e.run(ctx, args, "")
}

func (e *KubernetesExecutor) run(ctx context.Context, args []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, e.kubectlPath, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("kubectl %s failed: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
