package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sink accepts formatted notification text. Implementations must be
// safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// APIError is a sink-side rejection (missing_scope, channel_not_found,
// not_in_channel, ...). Surfaced to callers but never treated as fatal.
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notification sink rejected message: %s", e.Code)
}

// Webhook posts notifications to a chat webhook endpoint.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook sink.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookRequest struct {
	Text string `json:"text"`
}

type webhookResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Send posts the text payload and decodes the ok/error envelope.
func (w *Webhook) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(webhookRequest{Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification sink returned HTTP %d", resp.StatusCode)
	}

	var parsed webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		// Some webhook endpoints answer with a bare "ok" body.
		return nil
	}
	if !parsed.OK && parsed.Error != "" {
		return &APIError{Code: parsed.Error}
	}
	return nil
}
