package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// jsonPoster POSTs JSON bodies, retrying transport errors and 5xx
// responses. 4xx responses are final.
type jsonPoster struct {
	name     string
	client   *http.Client
	attempts int
	backoff  time.Duration
}

func newJSONPoster(name string) jsonPoster {
	return jsonPoster{
		name:     name,
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
		backoff:  time.Second,
	}
}

func (p jsonPoster) post(ctx context.Context, url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", p.name, err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w (last error: %v)", p.name, ctx.Err(), lastErr)
			case <-time.After(p.backoff * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%s: create request: %w", p.name, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s: send: %w", p.name, err)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
			slog.Warn("notifier retrying", "notifier", p.name, "status", resp.StatusCode, "attempt", attempt)
		default:
			return fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
		}
	}
	return lastErr
}

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url  string
	http jsonPoster
	now  func() time.Time
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, http: newJSONPoster("webhook"), now: time.Now}
}

type webhookPayload struct {
	Alert
	TS string `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := webhookPayload{Alert: alert, TS: w.now().UTC().Format(time.RFC3339Nano)}
	if err := w.http.post(ctx, w.url, payload); err != nil {
		return err
	}
	slog.Debug("webhook alert sent", "title", alert.Title)
	return nil
}
