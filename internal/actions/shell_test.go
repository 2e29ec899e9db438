package actions

import (
	"context"
	"testing"

	"github.com/e-m-dev/remedy/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestShellExecutor_CapturesStdout(t *testing.T) {
	e := NewShellExecutor()

	out, err := e.Execute(context.Background(), models.ActionStep{
		ID:     "echo",
		Kind:   models.ActionShell,
		Config: map[string]interface{}{"command": "echo hello"},
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestShellExecutor_NonZeroExitIsError(t *testing.T) {
	e := NewShellExecutor()

	_, err := e.Execute(context.Background(), models.ActionStep{
		ID:     "fail",
		Kind:   models.ActionShell,
		Config: map[string]interface{}{"command": "echo oops >&2; exit 3"},
	}, nil)

	assert.ErrorContains(t, err, "command failed")
	assert.ErrorContains(t, err, "oops")
}

func TestShellExecutor_RequiresCommand(t *testing.T) {
	e := NewShellExecutor()

	_, err := e.Execute(context.Background(), models.ActionStep{
		ID:     "empty",
		Kind:   models.ActionShell,
		Config: map[string]interface{}{},
	}, nil)

	assert.ErrorContains(t, err, "command is required")
}

func TestScriptExecutor_RunsScriptBody(t *testing.T) {
	e := NewScriptExecutor()

	out, err := e.Execute(context.Background(), models.ActionStep{
		ID:   "script",
		Kind: models.ActionScript,
		Config: map[string]interface{}{
			"interpreter": "sh",
			"script":      "x=40\necho $((x + 2))\n",
		},
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestScriptExecutor_RequiresScript(t *testing.T) {
	e := NewScriptExecutor()

	_, err := e.Execute(context.Background(), models.ActionStep{
		ID:     "empty",
		Kind:   models.ActionScript,
		Config: map[string]interface{}{},
	}, nil)

	assert.ErrorContains(t, err, "script is required")
}
