package collect

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/flow"
	"github.com/flowmetrics/jira-flow-exporter/internal/jira"
	"github.com/flowmetrics/jira-flow-exporter/internal/metrics"
	"github.com/flowmetrics/jira-flow-exporter/internal/roster"
)

type fakeSearcher struct {
	closed map[string][]jira.Issue // keyed by assignee account id
	qa     []jira.Issue
	aging  map[string][]jira.Issue // keyed by first status in the filter
	counts map[string]int          // keyed by assignee account id

	failCounts bool
	failAging  bool
}

func (f *fakeSearcher) SearchIssues(_ context.Context, jql string, _ bool) ([]jira.Issue, error) {
	switch {
	case strings.Contains(jql, "status changed to"):
		for accountID, issues := range f.closed {
			if strings.Contains(jql, accountID) {
				return issues, nil
			}
		}
		return nil, nil
	case strings.Contains(jql, "status changed from"):
		return f.qa, nil
	case strings.Contains(jql, "status in ("):
		if f.failAging {
			return nil, errors.New("aging query failed")
		}
		for status, issues := range f.aging {
			if strings.Contains(jql, status) {
				return issues, nil
			}
		}
		return nil, nil
	}
	return nil, nil
}

func (f *fakeSearcher) CountIssues(_ context.Context, jql string) (int, error) {
	if f.failCounts {
		return 0, errors.New("count query failed")
	}
	for accountID, count := range f.counts {
		if strings.Contains(jql, accountID) {
			return count, nil
		}
	}
	return 0, nil
}

func testWorkflow() config.WorkflowConfig {
	return config.WorkflowConfig{
		InProgress:        []string{"En curso", "In Progress"},
		Done:              []string{"Listo para Prod"},
		Test:              []string{"Test"},
		Review:            []string{"Review"},
		ClosedWindow:      7 * 24 * time.Hour,
		TestingDayBuckets: []float64{1, 3},
		Aging: []config.AgingCategory{
			{Category: "backlog", Statuses: []string{"Backlog"}, ThresholdDays: 5},
		},
	}
}

func testGroups() roster.Groups {
	return roster.Groups{
		Developers: roster.Group{"acc-1": "Alice Ramos"},
		QA:         roster.Group{"acc-3": "Carmen Soto"},
	}
}

func findSample(t *testing.T, snapshot *metrics.Snapshot, name string, labels map[string]string) *metrics.Sample {
	t.Helper()
	var found *metrics.Sample
	for _, sample := range snapshot.Samples() {
		sample := sample
		if sample.Name != name {
			continue
		}
		match := true
		for key, want := range labels {
			if sample.Labels[key] != want {
				match = false
				break
			}
		}
		if match {
			found = &sample
		}
	}
	return found
}

func TestCollectCycleTimeFromChangelog(t *testing.T) {
	t.Parallel()

	// Monday 9am to Wednesday 9am spans three business days.
	monday := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	wednesday := monday.AddDate(0, 0, 2)

	searcher := &fakeSearcher{
		counts: map[string]int{"acc-1": 2},
		closed: map[string][]jira.Issue{
			"acc-1": {
				{
					Key: "GRV-1",
					Changelog: []flow.Event{
						{From: "New", To: "En curso", At: monday},
						{From: "En curso", To: "Listo para Prod", At: wednesday},
					},
				},
				{
					// Never entered progress: contributes nothing.
					Key: "GRV-2",
					Changelog: []flow.Event{
						{From: "New", To: "Listo para Prod", At: wednesday},
					},
				},
			},
		},
	}

	collector := NewCollector("GRV", testWorkflow(), testGroups(), searcher)
	snapshot := collector.Collect(context.Background())

	labels := map[string]string{"developer": "Alice Ramos"}
	if gauge := findSample(t, snapshot, MetricTicketsInProgress, labels); gauge == nil || gauge.Value != 2 {
		t.Fatalf("in-progress gauge = %v, want 2", gauge)
	}

	var observations []float64
	for _, sample := range snapshot.Samples() {
		if sample.Name == MetricCycleTimeHours {
			observations = append(observations, sample.Value)
		}
	}
	if len(observations) != 1 {
		t.Fatalf("cycle-time observations = %v, want exactly one", observations)
	}
	if observations[0] != 24 {
		t.Fatalf("cycle time = %v hours, want 24", observations[0])
	}
}

func TestCollectCountsRework(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{
		closed: map[string][]jira.Issue{
			"acc-1": {{
				Key: "GRV-5",
				Changelog: []flow.Event{
					{From: "New", To: "En curso", At: day},
					{From: "En curso", To: "Test", At: day.Add(time.Hour)},
					{From: "Test", To: "En curso", At: day.Add(2 * time.Hour)},
					{From: "En curso", To: "Review", At: day.Add(3 * time.Hour)},
					{From: "Review", To: "In Progress", At: day.Add(4 * time.Hour)},
					{From: "In Progress", To: "Listo para Prod", At: day.Add(5 * time.Hour)},
				},
			}},
		},
	}

	collector := NewCollector("GRV", testWorkflow(), testGroups(), searcher)
	snapshot := collector.Collect(context.Background())

	counter := findSample(t, snapshot, MetricReworkTotal, map[string]string{"developer": "Alice Ramos"})
	if counter == nil || counter.Value != 2 {
		t.Fatalf("rework counter = %v, want 2", counter)
	}
}

func TestCollectTestingDurationInDays(t *testing.T) {
	t.Parallel()

	// Test started Monday, left Test on Tuesday: 2 business days.
	monday := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{
		qa: []jira.Issue{{
			Key: "GRV-7",
			Changelog: []flow.Event{
				{From: "En curso", To: "Test", At: monday},
				{From: "Test", To: "Listo para Prod", At: monday.AddDate(0, 0, 1)},
			},
		}},
	}

	collector := NewCollector("GRV", testWorkflow(), testGroups(), searcher)
	snapshot := collector.Collect(context.Background())

	var days []float64
	for _, sample := range snapshot.Samples() {
		if sample.Name == MetricTestingTimeDays {
			days = append(days, sample.Value)
		}
	}
	if len(days) != 1 || days[0] != 2 {
		t.Fatalf("testing-day observations = %v, want [2]", days)
	}
	if buckets := snapshot.BucketsFor(MetricTestingTimeDays); len(buckets) != 2 {
		t.Fatalf("buckets = %v, want the configured two", buckets)
	}
}

func TestCollectAgingThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) // Friday
	searcher := &fakeSearcher{
		aging: map[string][]jira.Issue{
			"Backlog": {
				{Key: "GRV-8", Updated: now.AddDate(0, 0, -12)}, // stale
				{Key: "GRV-9", Updated: now.AddDate(0, 0, -1)},  // fresh
			},
		},
	}

	collector := NewCollector("GRV", testWorkflow(), testGroups(), searcher)
	collector.Now = func() time.Time { return now }
	snapshot := collector.Collect(context.Background())

	gauge := findSample(t, snapshot, MetricAgingTickets, map[string]string{"category": "backlog"})
	if gauge == nil || gauge.Value != 1 {
		t.Fatalf("aging gauge = %v, want 1", gauge)
	}
}

func TestCollectIsolatesCategoryFailures(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		failAging: true,
		counts:    map[string]int{"acc-1": 1},
	}

	collector := NewCollector("GRV", testWorkflow(), testGroups(), searcher)
	snapshot := collector.Collect(context.Background())

	if gauge := findSample(t, snapshot, MetricTicketsInProgress, map[string]string{"developer": "Alice Ramos"}); gauge == nil {
		t.Fatal("developer metrics missing despite unrelated aging failure")
	}
	up := findSample(t, snapshot, "collector_category_up", map[string]string{"category": "aging"})
	if up == nil || up.Value != 0 {
		t.Fatalf("aging category up = %v, want 0", up)
	}
	devUp := findSample(t, snapshot, "collector_category_up", map[string]string{"category": "developer_flow"})
	if devUp == nil || devUp.Value != 1 {
		t.Fatalf("developer category up = %v, want 1", devUp)
	}
}
