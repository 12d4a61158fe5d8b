package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/alert"
	"github.com/flowmetrics/jira-flow-exporter/internal/app"
	"github.com/flowmetrics/jira-flow-exporter/internal/collect"
	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/jira"
	"github.com/flowmetrics/jira-flow-exporter/internal/push"
	"github.com/flowmetrics/jira-flow-exporter/internal/roster"
	"github.com/flowmetrics/jira-flow-exporter/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jira-flow-exporter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A local .env is optional; configuration references variables with
	// ${VAR} syntax either way.
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.Parse()

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "jira-flow-exporter",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := jira.NewClient(cfg.Jira, logger)
	pingCtx, pingCancel := context.WithTimeout(rootCtx, cfg.Jira.RequestTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx); err != nil {
		return fmt.Errorf("connect to jira at %s: %w", cfg.Jira.BaseURL, err)
	}
	logger.Info("connected to jira",
		zap.String("base_url", cfg.Jira.BaseURL),
		zap.String("project", cfg.Jira.ProjectKey),
	)

	groups := roster.Build(rootCtx, client, cfg.Teams, logger)
	if groups.Empty() {
		logger.Warn("no team members resolved; metrics will be empty until teams are configured")
	}

	collector := collect.NewCollector(cfg.Jira.ProjectKey, cfg.Workflow, groups, client, logger)
	notifier := alert.NewNotifier(cfg.Alerts, logger)
	engine := alert.NewEngine(cfg.Jira.ProjectKey, client.BaseURL(), cfg.Alerts, client, groups, notifier, logger)
	publisher := push.NewPublisher(cfg.Push, logger)

	runtime := app.NewRuntime(cfg, collector, engine, publisher, groups, logger)
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runtime.Start(rootCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	runtime.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
