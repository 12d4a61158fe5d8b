// Package collect runs one metric-collection pass: it queries the tracker
// per category, reduces changelogs into timing facts, and accumulates a
// snapshot. A failed category is logged and skipped; the remaining
// categories still contribute, so partial snapshots get published.
package collect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/flow"
	"github.com/flowmetrics/jira-flow-exporter/internal/jira"
	"github.com/flowmetrics/jira-flow-exporter/internal/metrics"
	"github.com/flowmetrics/jira-flow-exporter/internal/roster"
	"github.com/flowmetrics/jira-flow-exporter/internal/worktime"
	"go.uber.org/zap"
)

// Metric names published per cycle.
const (
	MetricTicketsInProgress = "dev_tickets_in_progress_count"
	MetricCycleTimeHours    = "dev_cycle_time_hours"
	MetricReworkTotal       = "dev_rework_total"
	MetricTestingTimeDays   = "qa_testing_time_days"
	MetricAgingTickets      = "aging_tickets_count"
)

// IssueSearcher is the tracker surface the collector needs.
type IssueSearcher interface {
	SearchIssues(ctx context.Context, jql string, expandChangelog bool) ([]jira.Issue, error)
	CountIssues(ctx context.Context, jql string) (int, error)
}

// Collector produces one snapshot per invocation.
type Collector struct {
	projectKey string
	workflow   config.WorkflowConfig
	groups     roster.Groups
	client     IssueSearcher
	logger     *zap.Logger

	cycleSpec flow.Spec
	testSet   flow.StateSet

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewCollector creates a collector.
func NewCollector(
	projectKey string,
	workflow config.WorkflowConfig,
	groups roster.Groups,
	client IssueSearcher,
	logger ...*zap.Logger,
) *Collector {
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}

	reworkFrom := append(append([]string{}, workflow.Test...), workflow.Review...)
	return &Collector{
		projectKey: projectKey,
		workflow:   workflow,
		groups:     groups,
		client:     client,
		logger:     baseLogger,
		cycleSpec: flow.Spec{
			StartStates: flow.NewStateSet(workflow.InProgress...),
			EndStates:   flow.NewStateSet(workflow.Done...),
			ReworkFrom:  flow.NewStateSet(reworkFrom...),
			ReworkTo:    flow.NewStateSet(workflow.InProgress...),
		},
		testSet: flow.NewStateSet(workflow.Test...),
		Now:     time.Now,
	}
}

// Collect runs all metric categories and returns the accumulated snapshot.
func (c *Collector) Collect(ctx context.Context) *metrics.Snapshot {
	snapshot := metrics.NewSnapshot(c.Now())

	categories := []struct {
		name string
		run  func(context.Context, *metrics.Snapshot) error
	}{
		{"developer_flow", c.collectDeveloperFlow},
		{"qa_testing", c.collectTestingDuration},
		{"aging", c.collectAgingTickets},
	}

	for _, category := range categories {
		if err := category.run(ctx, snapshot); err != nil {
			c.logger.Error("metric category failed",
				zap.String("category", category.name),
				zap.Error(err),
			)
			snapshot.SetGauge("collector_category_up", "whether the category's tracker queries succeeded",
				map[string]string{"category": category.name}, 0)
			continue
		}
		snapshot.SetGauge("collector_category_up", "whether the category's tracker queries succeeded",
			map[string]string{"category": category.name}, 1)
	}
	return snapshot
}

func (c *Collector) collectDeveloperFlow(ctx context.Context, snapshot *metrics.Snapshot) error {
	var firstErr error
	for _, accountID := range sortedIDs(c.groups.Developers) {
		developer := c.groups.Developers[accountID]
		labels := map[string]string{"developer": developer}

		openJQL := fmt.Sprintf("project = %s AND status = %q AND assignee = %q",
			c.projectKey, c.workflow.CanonicalInProgress(), accountID)
		open, err := c.client.CountIssues(ctx, openJQL)
		if err != nil {
			c.logger.Warn("in-progress count failed",
				zap.String("developer", developer),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			snapshot.SetGauge(MetricTicketsInProgress,
				"open tickets currently in progress per developer", labels, float64(open))
		}

		closedJQL := fmt.Sprintf("project = %s AND status changed to %q AND assignee = %q AND updated >= %s",
			c.projectKey, c.workflow.CanonicalDone(), accountID, jqlWindow(c.workflow.ClosedWindow))
		closed, err := c.client.SearchIssues(ctx, closedJQL, true)
		if err != nil {
			c.logger.Warn("closed-issue search failed",
				zap.String("developer", developer),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, issue := range closed {
			reduction := flow.Reduce(issue.Changelog, c.cycleSpec)
			if reduction.HasStart && reduction.HasEnd {
				hours := worktime.BusinessHours(reduction.StartedAt, reduction.CompletedAt)
				snapshot.ObserveSummary(MetricCycleTimeHours,
					"business hours from in-progress to done per developer", labels, hours)
			}
			if reduction.ReworkCount > 0 {
				snapshot.AddCounter(MetricReworkTotal,
					"tickets bounced back into progress from test or review", labels,
					float64(reduction.ReworkCount))
			}
		}
	}
	return firstErr
}

func (c *Collector) collectTestingDuration(ctx context.Context, snapshot *metrics.Snapshot) error {
	qaIDs := sortedIDs(c.groups.QA)
	if len(qaIDs) == 0 {
		return nil
	}

	quoted := make([]string, 0, len(qaIDs))
	for _, accountID := range qaIDs {
		quoted = append(quoted, fmt.Sprintf("%q", accountID))
	}
	jql := fmt.Sprintf("project = %s AND status changed from %q by (%s) after %s",
		c.projectKey, c.workflow.CanonicalTest(), strings.Join(quoted, ", "),
		jqlWindow(c.workflow.ClosedWindow))

	issues, err := c.client.SearchIssues(ctx, jql, true)
	if err != nil {
		return fmt.Errorf("qa hand-off search: %w", err)
	}

	for _, issue := range issues {
		reduction := flow.ReduceExit(issue.Changelog, c.testSet)
		if !reduction.HasStart || !reduction.HasEnd {
			continue
		}
		days := worktime.BusinessHours(reduction.StartedAt, reduction.CompletedAt) / worktime.HoursPerBusinessDay
		snapshot.ObserveHistogram(MetricTestingTimeDays,
			"business days a ticket spends in testing", nil,
			c.workflow.TestingDayBuckets, days)
	}
	return nil
}

func (c *Collector) collectAgingTickets(ctx context.Context, snapshot *metrics.Snapshot) error {
	now := c.Now()
	var firstErr error
	for _, category := range c.workflow.Aging {
		quoted := make([]string, 0, len(category.Statuses))
		for _, status := range category.Statuses {
			quoted = append(quoted, fmt.Sprintf("%q", status))
		}
		jql := fmt.Sprintf("project = %s AND status in (%s)",
			c.projectKey, strings.Join(quoted, ", "))

		issues, err := c.client.SearchIssues(ctx, jql, false)
		if err != nil {
			c.logger.Warn("aging category search failed",
				zap.String("category", category.Category),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		stale := 0
		for _, issue := range issues {
			if worktime.BusinessDaysSince(issue.Updated, now) > category.ThresholdDays {
				stale++
			}
		}
		snapshot.SetGauge(MetricAgingTickets,
			"open tickets idle beyond the category's business-day threshold",
			map[string]string{"category": category.Category}, float64(stale))
	}
	return firstErr
}

// jqlWindow renders a trailing window as a relative JQL timestamp.
func jqlWindow(window time.Duration) string {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if window%(24*time.Hour) == 0 {
		return fmt.Sprintf("-%dd", int(window.Hours())/24)
	}
	if window%time.Hour == 0 {
		return fmt.Sprintf("-%dh", int(window.Hours()))
	}
	return fmt.Sprintf("-%dm", int(window.Minutes()))
}

func sortedIDs(group roster.Group) []string {
	ids := make([]string, 0, len(group))
	for accountID := range group {
		ids = append(ids, accountID)
	}
	sort.Strings(ids)
	return ids
}
