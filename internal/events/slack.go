package events

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// degradationKinds are the events worth paging about: the pipeline kept
// running but lost a capability.
var degradationKinds = map[Kind]bool{
	KindErrorOccurred:         true,
	KindMemoryDegraded:        true,
	KindSummarizationFallback: true,
}

// SlackNotifier posts degradation-class events to a Slack webhook. All other
// kinds are ignored.
type SlackNotifier struct {
	webhookURL string
}

// NewSlackNotifier creates a notifier for the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL}
}

// Deliver posts the event if it signals degradation.
func (s *SlackNotifier) Deliver(ctx context.Context, event AgentEvent) error {
	if !degradationKinds[event.Kind] {
		return nil
	}
	text := fmt.Sprintf(":warning: *%s* thread=%s", event.Kind, event.ThreadID)
	if event.ErrorCode != "" {
		text += fmt.Sprintf(" code=%s: %s", event.ErrorCode, event.ErrorMessage)
	}
	if reason, ok := event.Payload["reason"].(string); ok {
		text += " reason=" + reason
	}
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}
