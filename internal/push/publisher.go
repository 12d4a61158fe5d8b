// Package push delivers a cycle's metric snapshot to a Prometheus push
// endpoint. Delivery is fire-and-forget: a failed push is logged by the
// caller and never retried within the cycle.
package push

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Publisher pushes snapshots to the configured endpoint.
type Publisher struct {
	cfg    config.PushConfig
	doer   HTTPDoer
	logger *zap.Logger
}

// NewPublisher creates a publisher from configuration.
func NewPublisher(cfg config.PushConfig, logger ...*zap.Logger) *Publisher {
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{
		cfg:    cfg,
		doer:   &http.Client{Timeout: timeout},
		logger: baseLogger,
	}
}

// SetDoer replaces the HTTP transport. Tests inject fakes through it.
func (p *Publisher) SetDoer(doer HTTPDoer) {
	if doer != nil {
		p.doer = doer
	}
}

// Enabled reports whether a push endpoint is configured.
func (p *Publisher) Enabled() bool {
	return p.cfg.URL != ""
}

// Publish materializes the snapshot into a fresh registry and pushes it.
func (p *Publisher) Publish(ctx context.Context, snapshot *metrics.Snapshot) error {
	if !p.Enabled() {
		return nil
	}
	if snapshot == nil || snapshot.Len() == 0 {
		p.logger.Debug("skipping push of empty snapshot")
		return nil
	}

	registry, err := buildRegistry(snapshot)
	if err != nil {
		return fmt.Errorf("build push registry: %w", err)
	}

	pusher := push.New(p.cfg.URL, p.cfg.Job).
		Gatherer(registry).
		Client(p.doer)
	if p.cfg.Username != "" {
		pusher = pusher.BasicAuth(p.cfg.Username, p.cfg.Password)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	p.logger.Debug("snapshot pushed",
		zap.Int("samples", snapshot.Len()),
		zap.Time("taken_at", snapshot.TakenAt),
	)
	return nil
}

// buildRegistry creates one collector per metric name with the label keys of
// its first sample. Collectors for a given name must be fed consistent label
// sets, which the collector engine guarantees.
func buildRegistry(snapshot *metrics.Snapshot) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	gauges := make(map[string]*prometheus.GaugeVec)
	counters := make(map[string]*prometheus.CounterVec)
	summaries := make(map[string]*prometheus.SummaryVec)
	histograms := make(map[string]*prometheus.HistogramVec)

	for _, sample := range snapshot.Samples() {
		labelKeys := sortedKeys(sample.Labels)

		switch sample.Kind {
		case metrics.KindGauge:
			vec, ok := gauges[sample.Name]
			if !ok {
				vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
					Name: sample.Name,
					Help: sample.Help,
				}, labelKeys)
				if err := registry.Register(vec); err != nil {
					return nil, err
				}
				gauges[sample.Name] = vec
			}
			vec.With(sample.Labels).Set(sample.Value)

		case metrics.KindCounter:
			vec, ok := counters[sample.Name]
			if !ok {
				vec = prometheus.NewCounterVec(prometheus.CounterOpts{
					Name: sample.Name,
					Help: sample.Help,
				}, labelKeys)
				if err := registry.Register(vec); err != nil {
					return nil, err
				}
				counters[sample.Name] = vec
			}
			vec.With(sample.Labels).Add(sample.Value)

		case metrics.KindSummary:
			vec, ok := summaries[sample.Name]
			if !ok {
				vec = prometheus.NewSummaryVec(prometheus.SummaryOpts{
					Name: sample.Name,
					Help: sample.Help,
				}, labelKeys)
				if err := registry.Register(vec); err != nil {
					return nil, err
				}
				summaries[sample.Name] = vec
			}
			vec.With(sample.Labels).Observe(sample.Value)

		case metrics.KindHistogram:
			vec, ok := histograms[sample.Name]
			if !ok {
				buckets := snapshot.BucketsFor(sample.Name)
				if len(buckets) == 0 {
					buckets = []float64{1, 3, math.Inf(1)}
				}
				vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
					Name:    sample.Name,
					Help:    sample.Help,
					Buckets: buckets,
				}, labelKeys)
				if err := registry.Register(vec); err != nil {
					return nil, err
				}
				histograms[sample.Name] = vec
			}
			vec.With(sample.Labels).Observe(sample.Value)

		default:
			return nil, fmt.Errorf("unknown sample kind %q for metric %s", sample.Kind, sample.Name)
		}
	}
	return registry, nil
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
