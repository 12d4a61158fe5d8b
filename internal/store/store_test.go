package store

import (
	"testing"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/metrics"
)

func TestReplaceAndSnapshotAreIsolated(t *testing.T) {
	t.Parallel()

	memStore := NewMemoryStore()
	now := time.Now()
	input := []MetricPoint{
		{Name: "b_metric", Value: 2, UpdatedAt: now},
		{Name: "a_metric", Labels: map[string]string{"developer": "Alice"}, Value: 1, UpdatedAt: now},
	}
	memStore.Replace(input, now)

	// Mutating the caller's slice must not affect the stored snapshot.
	input[0].Value = 99

	got := memStore.Snapshot()
	if len(got) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(got))
	}
	if got[0].Name != "a_metric" || got[1].Name != "b_metric" {
		t.Fatalf("snapshot order = %q, %q; want sorted by series", got[0].Name, got[1].Name)
	}
	if got[1].Value != 2 {
		t.Fatalf("stored value = %v, want 2 (isolated from caller mutation)", got[1].Value)
	}
	if !memStore.TakenAt().Equal(now) {
		t.Fatalf("TakenAt() = %v, want %v", memStore.TakenAt(), now)
	}
}

func TestFromSnapshotFlattensDistributions(t *testing.T) {
	t.Parallel()

	takenAt := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)
	snapshot := metrics.NewSnapshot(takenAt)
	snapshot.SetGauge("tickets_in_progress", "", map[string]string{"developer": "Alice"}, 3)
	snapshot.ObserveSummary("cycle_time_hours", "", map[string]string{"developer": "Alice"}, 24)
	snapshot.ObserveSummary("cycle_time_hours", "", map[string]string{"developer": "Alice"}, 8)

	points := FromSnapshot(snapshot)
	byName := make(map[string]MetricPoint, len(points))
	for _, point := range points {
		byName[point.Name] = point
	}

	if got := byName["tickets_in_progress"].Value; got != 3 {
		t.Fatalf("gauge value = %v, want 3", got)
	}
	if got := byName["cycle_time_hours_count"].Value; got != 2 {
		t.Fatalf("count = %v, want 2", got)
	}
	if got := byName["cycle_time_hours_sum"].Value; got != 32 {
		t.Fatalf("sum = %v, want 32", got)
	}
	for _, point := range points {
		if !point.UpdatedAt.Equal(takenAt) {
			t.Fatalf("point %s UpdatedAt = %v, want %v", point.Name, point.UpdatedAt, takenAt)
		}
	}
}
