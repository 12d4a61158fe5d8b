package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/jira"
	"github.com/flowmetrics/jira-flow-exporter/internal/roster"
	"go.uber.org/zap"
)

// Tracker is the Jira surface the alert engine queries.
type Tracker interface {
	SearchIssues(ctx context.Context, jql string, expandChangelog bool) ([]jira.Issue, error)
	Comments(ctx context.Context, issueKey string) ([]jira.Comment, error)
}

// Engine evaluates the alert rules once per cycle: newly created critical
// tickets, and new external comments on critical tickets. Comment alerts are
// deduplicated per (ticket, comment id) so a comment fires at most once.
type Engine struct {
	projectKey string
	baseURL    string
	priorities []string
	window     time.Duration

	tracker  Tracker
	groups   roster.Groups
	notifier *Notifier
	deduper  *Deduper
	logger   *zap.Logger

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewEngine creates the alert engine.
func NewEngine(
	projectKey string,
	baseURL string,
	cfg config.AlertsConfig,
	tracker Tracker,
	groups roster.Groups,
	notifier *Notifier,
	logger ...*zap.Logger,
) *Engine {
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}
	window := cfg.Window
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Engine{
		projectKey: projectKey,
		baseURL:    baseURL,
		priorities: cfg.CriticalPriorities,
		window:     window,
		tracker:    tracker,
		groups:     groups,
		notifier:   notifier,
		deduper:    NewDeduper(cfg.DedupIdleCycles),
		logger:     baseLogger,
	}
}

// Run evaluates both alert rules and returns the number of alerts delivered.
// Failed webhook sends are not marked as delivered, so they retry next cycle.
func (e *Engine) Run(ctx context.Context) (int, error) {
	if e.notifier == nil || !e.notifier.Enabled() {
		return 0, nil
	}
	defer e.deduper.EndCycle()

	sent := 0
	newSent, newErr := e.alertNewCriticals(ctx)
	sent += newSent

	commentSent, commentErr := e.alertExternalComments(ctx)
	sent += commentSent

	if newErr != nil {
		return sent, newErr
	}
	return sent, commentErr
}

func (e *Engine) alertNewCriticals(ctx context.Context) (int, error) {
	jql := fmt.Sprintf("project = %s AND priority in (%s) AND created >= %s",
		e.projectKey, strings.Join(e.priorities, ", "), relativeWindow(e.window))
	issues, err := e.tracker.SearchIssues(ctx, jql, false)
	if err != nil {
		return 0, fmt.Errorf("new-critical search: %w", err)
	}

	sent := 0
	for _, issue := range issues {
		if err := e.notifier.Send(ctx, FormatCriticalTicket(e.baseURL, issue)); err != nil {
			e.logger.Error("critical-ticket alert failed",
				zap.String("ticket", issue.Key),
				zap.Error(err),
			)
			continue
		}
		e.logger.Info("critical-ticket alert sent", zap.String("ticket", issue.Key))
		sent++
	}
	return sent, nil
}

func (e *Engine) alertExternalComments(ctx context.Context) (int, error) {
	jql := fmt.Sprintf("project = %s AND priority in (%s) AND updated >= %s",
		e.projectKey, strings.Join(e.priorities, ", "), relativeWindow(e.window))
	issues, err := e.tracker.SearchIssues(ctx, jql, false)
	if err != nil {
		return 0, fmt.Errorf("updated-critical search: %w", err)
	}

	sent := 0
	for _, issue := range issues {
		comments, err := e.tracker.Comments(ctx, issue.Key)
		if err != nil {
			e.logger.Warn("comment fetch failed",
				zap.String("ticket", issue.Key),
				zap.Error(err),
			)
			continue
		}
		if len(comments) == 0 {
			continue
		}

		last := comments[len(comments)-1]
		if e.groups.IsInternal(last.AuthorID, last.AuthorName) {
			continue
		}
		if !e.deduper.ShouldAlert(issue.Key, last.ID) {
			continue
		}

		if err := e.notifier.Send(ctx, FormatExternalComment(e.baseURL, issue, last)); err != nil {
			e.logger.Error("external-comment alert failed",
				zap.String("ticket", issue.Key),
				zap.Error(err),
			)
			continue
		}
		e.deduper.MarkAlerted(issue.Key, last.ID)
		e.logger.Info("external-comment alert sent",
			zap.String("ticket", issue.Key),
			zap.String("comment_id", last.ID),
		)
		sent++
	}
	return sent, nil
}

// TrackedTickets reports how many tickets the deduper currently remembers.
func (e *Engine) TrackedTickets() int {
	return e.deduper.Len()
}

func relativeWindow(window time.Duration) string {
	minutes := int(window.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("-%dm", minutes)
}
