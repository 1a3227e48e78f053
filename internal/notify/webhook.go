package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"heartwatch/internal/model"
)

// WebhookSender posts the alert as JSON. The audience is a URL, or a path
// below baseURL.
type WebhookSender struct {
	baseURL string
	token   string
	client  *http.Client
}

type webhookPayload struct {
	Title string      `json:"title"`
	Text  string      `json:"text"`
	Link  string      `json:"link,omitempty"`
	Alert model.Alert `json:"alert"`
}

func NewWebhook(baseURL, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, alert model.Alert) error {
	target := alert.Audience
	if !isURL(target) {
		if s.baseURL == "" {
			return fmt.Errorf("invalid webhook target %q", alert.Audience)
		}
		target = s.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	body, err := json.Marshal(webhookPayload{
		Title: FormatTitle(alert),
		Text:  FormatBody(alert),
		Link:  alert.Link(),
		Alert: alert,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender only logs. Useful for dry runs.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, alert model.Alert) error {
	if s.logger != nil {
		s.logger.Info("notification (dry run)",
			"audience", alert.Audience,
			"title", FormatTitle(alert),
			"text", FormatBody(alert),
		)
	}
	return nil
}
