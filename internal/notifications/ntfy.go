package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediapipe/internal/config"
)

const appName = "mediapipe"

// NewService posts alerts to the configured ntfy topic URL, or discards them
// when none is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noop{}
	}
	timeout := 10 * time.Second
	if s := cfg.Notifications.RequestTimeout; s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	return &ntfy{topic: topic, http: &http.Client{Timeout: timeout}}
}

type ntfy struct {
	topic string
	http  *http.Client
}

func (n *ntfy) Publish(ctx context.Context, event Event, payload Payload) error {
	render, ok := renderers[event]
	if !ok {
		return nil
	}
	a := render(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topic, strings.NewReader(a.body))
	if err != nil {
		return fmt.Errorf("ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", appName)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", appName+" - "+a.title)
	req.Header.Set("Tags", strings.Join(append([]string{appName}, a.tags...), ","))
	if a.priority != "" {
		req.Header.Set("Priority", a.priority)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy publish: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy publish: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noop struct{}

func (noop) Publish(context.Context, Event, Payload) error { return nil }
