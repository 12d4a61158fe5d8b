package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/jira"
	"go.uber.org/zap"
)

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier posts alert text to a chat webhook. Delivery is best effort:
// failures are logged by the caller and never retried.
type Notifier struct {
	webhookURL string
	doer       HTTPDoer
	logger     *zap.Logger
}

// NewNotifier creates a webhook notifier from configuration.
func NewNotifier(cfg config.AlertsConfig, logger ...*zap.Logger) *Notifier {
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		webhookURL: cfg.WebhookURL,
		doer:       &http.Client{Timeout: timeout},
		logger:     baseLogger,
	}
}

// SetDoer replaces the HTTP transport. Tests inject fakes through it.
func (n *Notifier) SetDoer(doer HTTPDoer) {
	if doer != nil {
		n.doer = doer
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Send posts one alert message as {"text": message}.
func (n *Notifier) Send(ctx context.Context, message string) error {
	if !n.Enabled() {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.doer.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("post alert: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	n.logger.Debug("alert delivered")
	return nil
}

// FormatCriticalTicket renders the new-critical-ticket alert message.
func FormatCriticalTicket(baseURL string, issue jira.Issue) string {
	component := "N/A"
	if len(issue.Components) > 0 {
		component = issue.Components[0]
	}
	return fmt.Sprintf(
		"🚨 *New Critical Ticket*\n\n<%s/browse/%s|%s> - *%s*\n*Reporter:* %s\n*Component:* %s",
		baseURL, issue.Key, issue.Key, issue.Summary, issue.Reporter, component,
	)
}

// FormatExternalComment renders the new-external-comment alert message.
func FormatExternalComment(baseURL string, issue jira.Issue, comment jira.Comment) string {
	return fmt.Sprintf(
		"⚠️ *New Important Comment on Critical Ticket*\n\n<%s/browse/%s|%s> - *%s*\n*Comment Author:* %s",
		baseURL, issue.Key, issue.Key, issue.Summary, comment.AuthorName,
	)
}
