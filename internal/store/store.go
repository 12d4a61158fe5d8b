// Package store holds the most recently published metric snapshot for
// read-only HTTP consumers. The cycle driver swaps a complete point set in at
// end of cycle, so readers never observe a half-built snapshot.
package store

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/metrics"
)

// MetricPoint is a single flattened metric sample.
type MetricPoint struct {
	Name      string
	Labels    map[string]string
	Value     float64
	UpdatedAt time.Time
}

// MemoryStore is an in-memory last-snapshot store.
type MemoryStore struct {
	mu     sync.RWMutex
	points []MetricPoint
	taken  time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Replace atomically installs a new point set.
func (s *MemoryStore) Replace(points []MetricPoint, takenAt time.Time) {
	copied := make([]MetricPoint, 0, len(points))
	for _, point := range points {
		copied = append(copied, MetricPoint{
			Name:      point.Name,
			Labels:    maps.Clone(point.Labels),
			Value:     point.Value,
			UpdatedAt: point.UpdatedAt,
		})
	}

	s.mu.Lock()
	s.points = copied
	s.taken = takenAt
	s.mu.Unlock()
}

// Snapshot returns the last installed point set, sorted by series key.
func (s *MemoryStore) Snapshot() []MetricPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]MetricPoint, 0, len(s.points))
	for _, point := range s.points {
		result = append(result, MetricPoint{
			Name:      point.Name,
			Labels:    maps.Clone(point.Labels),
			Value:     point.Value,
			UpdatedAt: point.UpdatedAt,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		leftKey := metricKey(result[i].Name, result[i].Labels)
		rightKey := metricKey(result[j].Name, result[j].Labels)
		return leftKey < rightKey
	})
	return result
}

// TakenAt reports when the current snapshot was collected.
func (s *MemoryStore) TakenAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taken
}

// FromSnapshot flattens a cycle snapshot into metric points. Gauge and
// counter series map one-to-one; summary and histogram observations collapse
// into per-series _count and _sum points so the scrape view stays readable
// without distribution state.
func FromSnapshot(snapshot *metrics.Snapshot) []MetricPoint {
	if snapshot == nil {
		return nil
	}

	var points []MetricPoint
	type aggregate struct {
		count float64
		sum   float64
		index int
	}
	distributions := make(map[string]*aggregate)

	for _, sample := range snapshot.Samples() {
		switch sample.Kind {
		case metrics.KindGauge, metrics.KindCounter:
			points = append(points, MetricPoint{
				Name:      sample.Name,
				Labels:    maps.Clone(sample.Labels),
				Value:     sample.Value,
				UpdatedAt: snapshot.TakenAt,
			})
		case metrics.KindSummary, metrics.KindHistogram:
			key := metricKey(sample.Name, sample.Labels)
			agg, ok := distributions[key]
			if !ok {
				agg = &aggregate{index: len(points)}
				distributions[key] = agg
				points = append(points, MetricPoint{
					Name:      sample.Name + "_count",
					Labels:    maps.Clone(sample.Labels),
					UpdatedAt: snapshot.TakenAt,
				}, MetricPoint{
					Name:      sample.Name + "_sum",
					Labels:    maps.Clone(sample.Labels),
					UpdatedAt: snapshot.TakenAt,
				})
			}
			agg.count++
			agg.sum += sample.Value
			points[agg.index].Value = agg.count
			points[agg.index+1].Value = agg.sum
		}
	}
	return points
}

func metricKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	builder.WriteString(name)
	builder.WriteString("|")
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteString("=")
		builder.WriteString(labels[key])
		builder.WriteString(";")
	}
	return builder.String()
}

// String implements fmt.Stringer for debug logging.
func (p MetricPoint) String() string {
	return fmt.Sprintf("%s=%v", metricKey(p.Name, p.Labels), p.Value)
}
