// Package metrics models the per-cycle metric snapshot: named, labeled
// observations accumulated during one collection pass and discarded after
// publishing.
package metrics

import (
	"maps"
	"sort"
	"strings"
	"time"
)

// Kind selects the Prometheus metric type a sample materializes into.
type Kind string

const (
	// KindGauge is a point-in-time value, overwritten per series.
	KindGauge Kind = "gauge"
	// KindCounter accumulates per series within the snapshot.
	KindCounter Kind = "counter"
	// KindSummary records individual observations.
	KindSummary Kind = "summary"
	// KindHistogram records individual observations into buckets.
	KindHistogram Kind = "histogram"
)

// Sample is one observation in a snapshot.
type Sample struct {
	Name   string
	Kind   Kind
	Help   string
	Labels map[string]string
	Value  float64
}

// Snapshot accumulates one cycle's samples. It is built by a single goroutine
// and must not be mutated after publishing.
type Snapshot struct {
	TakenAt time.Time

	ordered []string
	series  map[string]*Sample
	// observations keeps summary/histogram samples individually, since each
	// value contributes to the distribution.
	observations []Sample

	// Buckets configures histogram upper bounds per metric name.
	buckets map[string][]float64
}

// NewSnapshot creates an empty snapshot stamped with the cycle time.
func NewSnapshot(takenAt time.Time) *Snapshot {
	return &Snapshot{
		TakenAt: takenAt,
		series:  make(map[string]*Sample),
		buckets: make(map[string][]float64),
	}
}

// SetGauge sets a gauge series to a value, replacing any previous value for
// the same label set.
func (s *Snapshot) SetGauge(name, help string, labels map[string]string, value float64) {
	key := seriesKey(name, labels)
	if existing, ok := s.series[key]; ok {
		existing.Value = value
		return
	}
	s.ordered = append(s.ordered, key)
	s.series[key] = &Sample{
		Name:   name,
		Kind:   KindGauge,
		Help:   help,
		Labels: maps.Clone(labels),
		Value:  value,
	}
}

// AddCounter increments a counter series.
func (s *Snapshot) AddCounter(name, help string, labels map[string]string, delta float64) {
	if delta < 0 {
		return
	}
	key := seriesKey(name, labels)
	if existing, ok := s.series[key]; ok {
		existing.Value += delta
		return
	}
	s.ordered = append(s.ordered, key)
	s.series[key] = &Sample{
		Name:   name,
		Kind:   KindCounter,
		Help:   help,
		Labels: maps.Clone(labels),
		Value:  delta,
	}
}

// ObserveSummary records one summary observation.
func (s *Snapshot) ObserveSummary(name, help string, labels map[string]string, value float64) {
	s.observations = append(s.observations, Sample{
		Name:   name,
		Kind:   KindSummary,
		Help:   help,
		Labels: maps.Clone(labels),
		Value:  value,
	})
}

// ObserveHistogram records one histogram observation. Buckets apply per
// metric name; the +Inf bucket is implicit.
func (s *Snapshot) ObserveHistogram(name, help string, labels map[string]string, buckets []float64, value float64) {
	if _, ok := s.buckets[name]; !ok && len(buckets) > 0 {
		s.buckets[name] = append([]float64(nil), buckets...)
	}
	s.observations = append(s.observations, Sample{
		Name:   name,
		Kind:   KindHistogram,
		Help:   help,
		Labels: maps.Clone(labels),
		Value:  value,
	})
}

// Samples returns gauge/counter series in insertion order followed by
// distribution observations in recording order.
func (s *Snapshot) Samples() []Sample {
	result := make([]Sample, 0, len(s.ordered)+len(s.observations))
	for _, key := range s.ordered {
		result = append(result, *s.series[key])
	}
	result = append(result, s.observations...)
	return result
}

// BucketsFor returns configured histogram bounds for a metric name.
func (s *Snapshot) BucketsFor(name string) []float64 {
	return s.buckets[name]
}

// Len reports the number of samples in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.ordered) + len(s.observations)
}

func seriesKey(name string, labels map[string]string) string {
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
