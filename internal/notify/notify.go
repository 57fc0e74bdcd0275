// Package notify posts release notices to an external chat webhook. Sends
// are fire-and-forget with respect to the request that triggered them: the
// caller runs Send in a goroutine and a failure is logged, never returned to
// the uploading backend.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers release notices.
type Notifier interface {
	ReleaseCreated(ctx context.Context, createdBy, path string, files []string) error
}

// WebhookNotifier posts messages to a chat webhook URL.
type WebhookNotifier struct {
	url     string
	channel string
	client  *http.Client
}

// NewWebhook returns a notifier posting to the given webhook URL.
func NewWebhook(url, channel string) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ReleaseCreated posts a "user released outputs" notice.
func (n *WebhookNotifier) ReleaseCreated(ctx context.Context, createdBy, path string, files []string) error {
	var text string
	if len(files) == 0 {
		text = fmt.Sprintf("%s released outputs from %s", createdBy, path)
	} else {
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = "`" + f + "`"
		}
		text = fmt.Sprintf("%s released %d outputs from %s:\n%s",
			createdBy, len(files), path, strings.Join(names, "\n"))
	}

	payload, err := json.Marshal(map[string]string{
		"channel": n.channel,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %s", resp.Status)
	}
	return nil
}

// Noop discards all notifications. Used when no webhook is configured.
type Noop struct{}

// ReleaseCreated implements Notifier.
func (Noop) ReleaseCreated(context.Context, string, string, []string) error {
	return nil
}
