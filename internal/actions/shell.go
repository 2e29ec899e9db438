package actions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/e-m-dev/remedy/internal/models"
)

// ShellExecutor runs a command line through the shell.
//
// Config: command (required), workdir (optional).
type ShellExecutor struct{}

func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

func (e *ShellExecutor) Kind() models.ActionKind {
	return models.ActionShell
}

func (e *ShellExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	command := stringConfig(step, "command", "")
	if command == "" {
		return "", fmt.Errorf("shell step %q: command is required", step.ID)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workdir := stringConfig(step, "workdir", ""); workdir != "" {
		cmd.Dir = workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// ScriptExecutor writes a script body to a temp file and runs it with the
// configured interpreter.
//
// Config: script (required), interpreter (default "bash").
type ScriptExecutor struct{}

func NewScriptExecutor() *ScriptExecutor {
	return &ScriptExecutor{}
}

func (e *ScriptExecutor) Kind() models.ActionKind {
	return models.ActionScript
}

func (e *ScriptExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	script := stringConfig(step, "script", "")
	if script == "" {
		return "", fmt.Errorf("script step %q: script is required", step.ID)
	}
	interpreter := stringConfig(step, "interpreter", "bash")

	file, err := os.CreateTemp("", "remedy-step-*.sh")
	if err != nil {
		return "", fmt.Errorf("failed to create script file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.WriteString(script); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write script file: %w", err)
	}
	file.Close()

	cmd := exec.CommandContext(ctx, interpreter, file.Name())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("script failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
