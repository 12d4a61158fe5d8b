// Package jira is a minimal typed client for the Jira Cloud REST v2 API,
// covering the handful of calls the exporter needs: JQL search with changelog
// expansion, user resolution, comment listing, and a connectivity ping.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/flow"
	"github.com/flowmetrics/jira-flow-exporter/internal/telemetry"
	"github.com/flowmetrics/jira-flow-exporter/internal/worktime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues authenticated requests against one Jira site.
type Client struct {
	baseURL    string
	user       string
	apiToken   string
	maxResults int
	doer       HTTPDoer
	logger     *zap.Logger
}

// NewClient creates a Jira client from configuration.
func NewClient(cfg config.JiraConfig, logger ...*zap.Logger) *Client {
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		user:       cfg.User,
		apiToken:   cfg.APIToken,
		maxResults: maxResults,
		doer:       &http.Client{Timeout: cfg.RequestTimeout},
		logger:     baseLogger,
	}
}

// SetDoer replaces the HTTP transport. Tests inject fakes through it.
func (c *Client) SetDoer(doer HTTPDoer) {
	if doer != nil {
		c.doer = doer
	}
}

// BaseURL returns the configured Jira site URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping verifies connectivity and credentials against the server-info
// endpoint. Startup treats a failure here as fatal.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]any
	if err := c.getJSON(ctx, "/rest/api/2/serverInfo", nil, &out); err != nil {
		return fmt.Errorf("jira ping: %w", err)
	}
	return nil
}

// SearchIssues runs a JQL query, optionally expanding each issue's changelog,
// and returns up to the configured maximum number of issues. Changelog
// entries with malformed timestamps are skipped with a warning; issue-level
// timestamp failures drop the whole issue.
func (c *Client) SearchIssues(ctx context.Context, jql string, expandChangelog bool) ([]Issue, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, fmt.Errorf("jira search: empty jql")
	}

	query := url.Values{}
	query.Set("jql", jql)
	query.Set("maxResults", strconv.Itoa(c.maxResults))
	query.Set("fields", "summary,status,assignee,reporter,priority,components,created,updated")
	if expandChangelog {
		query.Set("expand", "changelog")
	}

	var parsed searchResponse
	if err := c.getJSON(ctx, "/rest/api/2/search", query, &parsed); err != nil {
		return nil, fmt.Errorf("jira search: %w", err)
	}

	issues := make([]Issue, 0, len(parsed.Issues))
	for _, raw := range parsed.Issues {
		issue, err := c.toIssue(raw)
		if err != nil {
			c.logger.Warn("skipping issue with malformed fields",
				zap.String("issue", raw.Key),
				zap.Error(err),
			)
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// CountIssues returns the total match count for a JQL query without fetching
// issue bodies.
func (c *Client) CountIssues(ctx context.Context, jql string) (int, error) {
	if strings.TrimSpace(jql) == "" {
		return 0, fmt.Errorf("jira count: empty jql")
	}

	query := url.Values{}
	query.Set("jql", jql)
	query.Set("maxResults", "0")

	var parsed struct {
		Total int `json:"total"`
	}
	if err := c.getJSON(ctx, "/rest/api/2/search", query, &parsed); err != nil {
		return 0, fmt.Errorf("jira count: %w", err)
	}
	return parsed.Total, nil
}

// ResolveAccountID resolves a display name to an account via user search,
// taking the first match as the original tooling did.
func (c *Client) ResolveAccountID(ctx context.Context, name string) (Account, bool, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Account{}, false, fmt.Errorf("jira user search: empty name")
	}

	query := url.Values{}
	query.Set("query", trimmed)
	query.Set("maxResults", "1")

	var users []userJSON
	if err := c.getJSON(ctx, "/rest/api/2/user/search", query, &users); err != nil {
		return Account{}, false, fmt.Errorf("jira user search %q: %w", trimmed, err)
	}
	if len(users) == 0 {
		return Account{}, false, nil
	}
	return Account{AccountID: users[0].AccountID, DisplayName: users[0].DisplayName}, true, nil
}

// Comments returns an issue's comments in the order Jira returned them
// (oldest first), skipping entries with malformed timestamps.
func (c *Client) Comments(ctx context.Context, issueKey string) ([]Comment, error) {
	if strings.TrimSpace(issueKey) == "" {
		return nil, fmt.Errorf("jira comments: empty issue key")
	}

	var parsed commentsResponse
	path := "/rest/api/2/issue/" + url.PathEscape(issueKey) + "/comment"
	if err := c.getJSON(ctx, path, nil, &parsed); err != nil {
		return nil, fmt.Errorf("jira comments %s: %w", issueKey, err)
	}

	comments := make([]Comment, 0, len(parsed.Comments))
	for _, raw := range parsed.Comments {
		created, err := worktime.ParseTimestamp(raw.Created)
		if err != nil {
			c.logger.Warn("skipping comment with malformed timestamp",
				zap.String("issue", issueKey),
				zap.String("comment_id", raw.ID),
				zap.Error(err),
			)
			continue
		}
		comments = append(comments, Comment{
			ID:         raw.ID,
			AuthorID:   raw.Author.AccountID,
			AuthorName: raw.Author.DisplayName,
			Created:    created,
		})
	}
	return comments, nil
}

func (c *Client) toIssue(raw issueJSON) (Issue, error) {
	created, err := worktime.ParseTimestamp(raw.Fields.Created)
	if err != nil {
		return Issue{}, fmt.Errorf("created: %w", err)
	}
	updated, err := worktime.ParseTimestamp(raw.Fields.Updated)
	if err != nil {
		return Issue{}, fmt.Errorf("updated: %w", err)
	}

	components := make([]string, 0, len(raw.Fields.Components))
	for _, component := range raw.Fields.Components {
		components = append(components, component.Name)
	}

	var events []flow.Event
	for _, history := range raw.Changelog.Histories {
		hasStatusItem := false
		for _, item := range history.Items {
			if item.Field == "status" {
				hasStatusItem = true
				break
			}
		}
		if !hasStatusItem {
			continue
		}
		at, parseErr := worktime.ParseTimestamp(history.Created)
		if parseErr != nil {
			c.logger.Warn("skipping changelog entry with malformed timestamp",
				zap.String("issue", raw.Key),
				zap.Error(parseErr),
			)
			continue
		}
		for _, item := range history.Items {
			if item.Field != "status" {
				continue
			}
			events = append(events, flow.Event{
				From: item.FromString,
				To:   item.ToString,
				At:   at,
			})
		}
	}

	return Issue{
		Key:        raw.Key,
		Summary:    raw.Fields.Summary,
		Status:     raw.Fields.Status.Name,
		AssigneeID: raw.Fields.Assignee.AccountID,
		Reporter:   raw.Fields.Reporter.DisplayName,
		Priority:   raw.Fields.Priority.Name,
		Components: components,
		Created:    created,
		Updated:    updated,
		Changelog:  events,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("base url is empty")
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("jira-flow-exporter/internal/jira").Start(
			ctx,
			"jira.client.get",
			trace.WithAttributes(attribute.String("http.path", path)),
		)
		defer span.End()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.user, c.apiToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if span != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	c.logger.Debug("jira request completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if span != nil {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode failed")
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if span != nil {
		span.SetStatus(codes.Ok, "request completed")
	}
	return nil
}
