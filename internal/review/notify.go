package review

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/config"
)

// Notification describes an enrichment that entered the review queue.
type Notification struct {
	EnrichmentID string    `json:"enrichment_id"`
	RecordID     string    `json:"record_id"`
	RunID        string    `json:"run_id"`
	Field        string    `json:"field"`
	Confidence   float64   `json:"confidence"`
	Warnings     []string  `json:"warnings,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier announces that an enrichment needs human review.
type Notifier interface {
	NotifyReviewRequired(ctx context.Context, note Notification) error
}

// WebhookNotifier posts review notifications to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for the configured webhook.
// A notifier with an empty URL is a no-op.
func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyReviewRequired posts the notification payload as JSON.
func (n *WebhookNotifier) NotifyReviewRequired(ctx context.Context, note Notification) error {
	if n.url == "" {
		return nil
	}

	payload, err := json.Marshal(note)
	if err != nil {
		return eris.Wrap(err, "review: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "review: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "review: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("review: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
