package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notifier delivers operator alerts about upload failures and drain timeouts.
type Notifier interface {
	SendAlert(ctx context.Context, source string, severity string, message string) error
}

type ConsoleNotifier struct{}

func (n *ConsoleNotifier) SendAlert(_ context.Context, source, severity, message string) error {
	fmt.Printf("[ALERT][%s] Source: %s - %s\n", severity, source, message)
	return nil
}

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color string `json:"color"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

func severityColor(severity string) string {
	switch severity {
	case SeverityCritical:
		return "#ff0000"
	case SeverityWarning:
		return "#ffa500"
	default:
		return "#36a64f"
	}
}

func (n *SlackNotifier) SendAlert(ctx context.Context, source string, severity string, message string) error {
	body, err := json.Marshal(slackPayload{
		Text: "Rainroll Alert: " + source,
		Attachments: []slackAttachment{{
			Color: severityColor(severity),
			Title: fmt.Sprintf("[%s] Alert", severity),
			Text:  message,
		}},
	})
	if err != nil {
		return fmt.Errorf("notifications: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifications: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifications: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack api returned status: %d", resp.StatusCode)
	}
	return nil
}
