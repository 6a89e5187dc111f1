// Package notify pushes trade notices to a webhook endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kestrel/internal/util"
)

// Webhook posts JSON notices to a single URL, retrying transient
// failures. A Webhook with an empty URL is a no-op, so callers never
// need to branch on whether notification is configured.
type Webhook struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// message is the posted payload.
type message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Time  string `json:"time"`
}

// NewWebhook creates a webhook notifier for the URL.
func NewWebhook(url string, log *slog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Send posts one notice. Failures are logged, never returned: a lost
// notification must not disturb trading.
func (w *Webhook) Send(ctx context.Context, title, body string) {
	if w.url == "" {
		return
	}
	payload, err := json.Marshal(message{
		Title: title,
		Body:  body,
		Time:  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		w.log.Error("encoding notice", "error", err)
		return
	}

	err = util.Retry(ctx, 3, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		w.log.Warn("notice delivery failed", "title", title, "error", err)
	}
}
