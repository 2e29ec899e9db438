package actions

import (
	"context"
	"fmt"

	"github.com/e-m-dev/remedy/internal/models"
	"github.com/slack-go/slack"
)

// NotificationExecutor posts a message to Slack.
//
// Config: message (required), channel (falls back to the default channel).
type NotificationExecutor struct {
	client         *slack.Client
	defaultChannel string
}

// NewNotificationExecutor creates a Slack-backed notification executor.
func NewNotificationExecutor(token, defaultChannel string) *NotificationExecutor {
	return &NotificationExecutor{
		client:         slack.New(token),
		defaultChannel: defaultChannel,
	}
}

func (e *NotificationExecutor) Kind() models.ActionKind {
	return models.ActionNotification
}

func (e *NotificationExecutor) Execute(ctx context.Context, step models.ActionStep, vars map[string]interface{}) (string, error) {
	message := stringConfig(step, "message", "")
	if message == "" {
		return "", fmt.Errorf("notification step %q: message is required", step.ID)
	}

	channel := stringConfig(step, "channel", e.defaultChannel)

	_, timestamp, err := e.client.PostMessageContext(ctx, channel,
		slack.MsgOptionText(message, false),
	)
	if err != nil {
		return "", fmt.Errorf("failed to post to %s: %w", channel, err)
	}

	return fmt.Sprintf("posted to %s at %s", channel, timestamp), nil
}
