package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"heartwatch/internal/model"
)

// NtfySender publishes to an ntfy server. The alert audience is the topic
// name, or a full topic URL.
type NtfySender struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewNtfy(baseURL, token string, timeout time.Duration) *NtfySender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NtfySender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *NtfySender) Name() string { return "ntfy" }

func (s *NtfySender) Send(ctx context.Context, alert model.Alert) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.topicURL(alert.Audience), strings.NewReader(FormatBody(alert)))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Title", FormatTitle(alert))
	req.Header.Set("Tags", "heart,"+alert.Tier)
	if alert.Priority != "" {
		req.Header.Set("Priority", alert.Priority)
	}
	if link := alert.Link(); link != "" {
		req.Header.Set("Click", link)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy publish: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy returned %s", resp.Status)
	}
	return nil
}

func (s *NtfySender) topicURL(audience string) string {
	if isURL(audience) {
		return audience
	}
	return s.baseURL + "/" + strings.TrimLeft(audience, "/")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func FormatTitle(alert model.Alert) string {
	return fmt.Sprintf("❤️ %d hearts", alert.Value)
}

func FormatBody(alert model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message %s reached %d hearts (tier %s).", alert.MessageID, alert.Value, alert.Tier)
	if link := alert.Link(); link != "" {
		b.WriteString("\n")
		b.WriteString(link)
	}
	return b.String()
}
