// Package app drives the collection loop and serves the HTTP surface. One
// goroutine runs metric collection, publishing, and alert evaluation
// sequentially; HTTP readers only see the last completed snapshot.
package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/exporter"
	"github.com/flowmetrics/jira-flow-exporter/internal/health"
	"github.com/flowmetrics/jira-flow-exporter/internal/metrics"
	"github.com/flowmetrics/jira-flow-exporter/internal/roster"
	"github.com/flowmetrics/jira-flow-exporter/internal/store"
	"go.uber.org/zap"
)

// Collector produces one metric snapshot per cycle.
type Collector interface {
	Collect(ctx context.Context) *metrics.Snapshot
}

// AlertRunner evaluates the alert rules once per cycle.
type AlertRunner interface {
	Run(ctx context.Context) (int, error)
}

// Publisher pushes a snapshot to the metrics backend.
type Publisher interface {
	Enabled() bool
	Publish(ctx context.Context, snapshot *metrics.Snapshot) error
}

// Runtime is the application runtime orchestrator.
type Runtime struct {
	cfg       *config.Config
	collector Collector
	alerts    AlertRunner
	publisher Publisher
	store     *store.MemoryStore
	groups    roster.Groups
	logger    *zap.Logger

	mu          sync.RWMutex
	lastCycleOK bool
	cycles      uint64
	loopCancel  context.CancelFunc

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime instance.
func NewRuntime(
	cfg *config.Config,
	collector Collector,
	alerts AlertRunner,
	publisher Publisher,
	groups roster.Groups,
	logger ...*zap.Logger,
) *Runtime {
	if cfg == nil {
		cfg = &config.Config{}
	}
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}

	return &Runtime{
		cfg:       cfg,
		collector: collector,
		alerts:    alerts,
		publisher: publisher,
		store:     store.NewMemoryStore(),
		groups:    groups,
		logger:    baseLogger,
		// No cycle has failed yet; health starts from the roster state.
		lastCycleOK: true,
		Now:         time.Now,
	}
}

// Store exposes the last-snapshot store.
func (r *Runtime) Store() *store.MemoryStore {
	return r.store
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	metricsHandler := exporter.NewOpenMetricsHandler(r.store)
	healthHandler := health.NewHandler(r)
	return NewHTTPHandler(metricsHandler, healthHandler)
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	r.mu.RLock()
	lastCycleOK := r.lastCycleOK
	r.mu.RUnlock()
	return health.Evaluate(
		len(r.groups.Developers),
		len(r.groups.QA),
		len(r.groups.PM),
		lastCycleOK,
	)
}

// Cycles reports how many collection cycles have completed.
func (r *Runtime) Cycles() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycles
}

// Start launches the collection loop. The first cycle runs immediately.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.loopCancel != nil {
		r.loopCancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.loopCancel = cancel
	r.mu.Unlock()

	interval := r.pollInterval()
	r.logger.Info("starting collection loop",
		zap.Duration("interval", interval),
		zap.Int("developers", len(r.groups.Developers)),
		zap.Int("qa_team", len(r.groups.QA)),
		zap.Int("pm_team", len(r.groups.PM)),
	)
	if r.groups.Empty() {
		r.logger.Warn("no team members resolved; cycles will produce empty snapshots")
	}

	go r.runLoop(loopCtx, interval)
}

// Stop stops the collection loop.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loopCancel != nil {
		r.loopCancel()
		r.loopCancel = nil
	}
	r.logger.Info("stopped collection loop")
}

// RunCycle executes one collect-publish-alert cycle. A failed stage is logged
// and does not abort the remaining stages; a panic anywhere in the cycle is
// recovered here so the loop and the process survive it.
func (r *Runtime) RunCycle(ctx context.Context) {
	cycleStart := time.Now()
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.logger.Error("collection cycle panicked",
			zap.Any("panic", rec),
			zap.Stack("stack"),
			zap.Duration("duration", time.Since(cycleStart)),
		)
		r.mu.Lock()
		r.lastCycleOK = false
		r.cycles++
		r.mu.Unlock()
	}()
	r.logger.Debug("collection cycle started", zap.Time("now", r.Now()))

	cycleOK := true

	snapshot := r.collector.Collect(ctx)
	r.store.Replace(store.FromSnapshot(snapshot), snapshot.TakenAt)

	if r.publisher != nil && r.publisher.Enabled() {
		if err := r.publisher.Publish(ctx, snapshot); err != nil {
			r.logger.Error("snapshot push failed", zap.Error(err))
			cycleOK = false
		}
	}

	alertsSent := 0
	if r.alerts != nil {
		sent, err := r.alerts.Run(ctx)
		alertsSent = sent
		if err != nil {
			r.logger.Error("alert evaluation failed", zap.Error(err))
			cycleOK = false
		}
	}

	r.mu.Lock()
	r.lastCycleOK = cycleOK
	r.cycles++
	r.mu.Unlock()

	r.logger.Info("collection cycle completed",
		zap.Int("samples", snapshot.Len()),
		zap.Int("alerts_sent", alertsSent),
		zap.Bool("cycle_ok", cycleOK),
		zap.Duration("duration", time.Since(cycleStart)),
	)
}

func (r *Runtime) runLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("collection loop stopped")
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

func (r *Runtime) pollInterval() time.Duration {
	if r.cfg.PollInterval > 0 {
		return r.cfg.PollInterval
	}
	return 5 * time.Minute
}
