package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haatos/cijoe/internal/store"
)

// Notifier delivers a finished build somewhere. Errors are logged by the
// caller and never change the build result.
type Notifier interface {
	Notify(ctx context.Context, b store.Build) error
}

type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type buildNotification struct {
	Message  string            `json:"message"`
	User     string            `json:"user"`
	Project  string            `json:"project"`
	Branch   string            `json:"branch"`
	SHA      string            `json:"sha"`
	Status   store.BuildStatus `json:"status"`
	Duration float64           `json:"duration_seconds"`
	Output   string            `json:"output"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, b store.Build) error {
	body, err := json.Marshal(buildNotification{
		Message:  notificationMessage(b),
		User:     b.User,
		Project:  b.Project,
		Branch:   b.Branch,
		SHA:      b.SHA,
		Status:   b.Status,
		Duration: b.Duration().Seconds(),
		Output:   b.EnvOutput(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify %s: unexpected status %d", n.url, resp.StatusCode)
	}
	return nil
}

func notificationMessage(b store.Build) string {
	result := "FAILED"
	if b.Worked() {
		result = "passed"
	}
	msg := fmt.Sprintf("Build %s of %s %s", b.ShortSHA(), b.Project, result)
	if b.Commit != nil && b.Commit.Author != "" {
		msg += fmt.Sprintf(" (%s)", b.Commit.Author)
	}
	return msg
}
