package metrics

import (
	"testing"
	"time"
)

func TestSnapshotGaugeOverwritesSameSeries(t *testing.T) {
	t.Parallel()

	snapshot := NewSnapshot(time.Now())
	snapshot.SetGauge("tickets_in_progress", "help", map[string]string{"developer": "Alice"}, 3)
	snapshot.SetGauge("tickets_in_progress", "help", map[string]string{"developer": "Alice"}, 5)
	snapshot.SetGauge("tickets_in_progress", "help", map[string]string{"developer": "Bob"}, 1)

	samples := snapshot.Samples()
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0].Value != 5 {
		t.Fatalf("Alice gauge = %v, want 5", samples[0].Value)
	}
}

func TestSnapshotCounterAccumulates(t *testing.T) {
	t.Parallel()

	snapshot := NewSnapshot(time.Now())
	labels := map[string]string{"developer": "Alice"}
	snapshot.AddCounter("rework_total", "help", labels, 2)
	snapshot.AddCounter("rework_total", "help", labels, 1)
	snapshot.AddCounter("rework_total", "help", labels, -4)

	samples := snapshot.Samples()
	if len(samples) != 1 {
		t.Fatalf("len(samples) = %d, want 1", len(samples))
	}
	if samples[0].Value != 3 {
		t.Fatalf("counter = %v, want 3 (negative deltas ignored)", samples[0].Value)
	}
}

func TestSnapshotKeepsObservationsSeparate(t *testing.T) {
	t.Parallel()

	snapshot := NewSnapshot(time.Now())
	snapshot.ObserveSummary("cycle_time_hours", "help", map[string]string{"developer": "Alice"}, 24)
	snapshot.ObserveSummary("cycle_time_hours", "help", map[string]string{"developer": "Alice"}, 8)
	snapshot.ObserveHistogram("testing_time_days", "help", nil, []float64{1, 3}, 2)

	if snapshot.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", snapshot.Len())
	}
	buckets := snapshot.BucketsFor("testing_time_days")
	if len(buckets) != 2 || buckets[0] != 1 || buckets[1] != 3 {
		t.Fatalf("BucketsFor() = %v, want [1 3]", buckets)
	}
	if snapshot.BucketsFor("cycle_time_hours") != nil {
		t.Fatal("summary metric should have no buckets")
	}
}
