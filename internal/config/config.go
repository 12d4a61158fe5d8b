// Package config loads and validates the exporter configuration from YAML.
// String values may reference environment variables with ${VAR} syntax, which
// keeps credentials out of the config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	Jira      JiraConfig
	Workflow  WorkflowConfig
	Teams     TeamsConfig
	Alerts    AlertsConfig
	Push      PushConfig
	Telemetry TelemetryConfig

	// PollInterval separates metric/alert cycles.
	PollInterval time.Duration
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
}

// JiraConfig configures the tracker connection and query scope.
type JiraConfig struct {
	BaseURL        string
	User           string
	APIToken       string
	ProjectKey     string
	RequestTimeout time.Duration
	MaxResults     int
}

// WorkflowConfig maps logical workflow states to the status-name aliases seen
// across board revisions, and bounds the trailing query windows.
type WorkflowConfig struct {
	InProgress []string
	Done       []string
	Test       []string
	Review     []string

	ClosedWindow      time.Duration
	TestingDayBuckets []float64
	Aging             []AgingCategory
}

// AgingCategory flags open tickets stuck in a status beyond a business-day
// threshold.
type AgingCategory struct {
	Category      string   `yaml:"category"`
	Statuses      []string `yaml:"statuses"`
	ThresholdDays int      `yaml:"threshold_days"`
}

// TeamsConfig lists team member display names per role group. Names are
// resolved to account ids at startup; the internal list extends the three
// role groups for comment-alert suppression.
type TeamsConfig struct {
	Developers []string `yaml:"developers"`
	QA         []string `yaml:"qa"`
	PM         []string `yaml:"pm"`
	Internal   []string `yaml:"internal"`
}

// AlertsConfig configures chat-webhook alerting.
type AlertsConfig struct {
	WebhookURL         string
	CriticalPriorities []string
	Window             time.Duration
	RequestTimeout     time.Duration
	DedupIdleCycles    int
}

// PushConfig configures the metrics push endpoint.
type PushConfig struct {
	URL            string
	Job            string
	Username       string
	Password       string
	RequestTimeout time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML, expands ${VAR} environment references,
// applies defaults, and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.Expand(string(raw), os.Getenv)

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)

	var parsed rawConfig
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := parsed.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		errs = append(errs, "server.log_level must be one of debug|info|warn|error")
	}

	if c.Jira.BaseURL == "" {
		errs = append(errs, "jira.base_url is required")
	}
	if c.Jira.User == "" {
		errs = append(errs, "jira.user is required")
	}
	if c.Jira.APIToken == "" {
		errs = append(errs, "jira.api_token is required")
	}
	if c.Jira.ProjectKey == "" {
		errs = append(errs, "jira.project_key is required")
	}
	if c.Jira.MaxResults <= 0 {
		errs = append(errs, "jira.max_results must be > 0")
	}

	if len(c.Workflow.InProgress) == 0 {
		errs = append(errs, "workflow.in_progress must contain at least one status name")
	}
	if len(c.Workflow.Done) == 0 {
		errs = append(errs, "workflow.done must contain at least one status name")
	}
	if len(c.Workflow.Test) == 0 {
		errs = append(errs, "workflow.test must contain at least one status name")
	}

	seenCategories := make(map[string]struct{}, len(c.Workflow.Aging))
	for i, category := range c.Workflow.Aging {
		prefix := fmt.Sprintf("workflow.aging[%d]", i)
		if category.Category == "" {
			errs = append(errs, prefix+".category is required")
		}
		if len(category.Statuses) == 0 {
			errs = append(errs, prefix+".statuses must contain at least one status name")
		}
		if category.ThresholdDays < 0 {
			errs = append(errs, prefix+".threshold_days must be >= 0")
		}
		if _, ok := seenCategories[category.Category]; ok {
			errs = append(errs, "workflow.aging contains duplicate category: "+category.Category)
		}
		seenCategories[category.Category] = struct{}{}
	}

	if c.PollInterval <= 0 {
		errs = append(errs, "poll_interval must be > 0")
	}
	if c.Alerts.Window <= 0 {
		errs = append(errs, "alerts.window must be > 0")
	}
	if len(c.Alerts.CriticalPriorities) == 0 {
		errs = append(errs, "alerts.critical_priorities must contain at least one priority")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// CanonicalInProgress is the status name used when building JQL. Aliases only
// matter when interpreting changelogs.
func (c *WorkflowConfig) CanonicalInProgress() string { return first(c.InProgress) }

// CanonicalDone is the done status name used when building JQL.
func (c *WorkflowConfig) CanonicalDone() string { return first(c.Done) }

// CanonicalTest is the test status name used when building JQL.
func (c *WorkflowConfig) CanonicalTest() string { return first(c.Test) }

func first(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":10000"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Jira.RequestTimeout <= 0 {
		cfg.Jira.RequestTimeout = 30 * time.Second
	}
	if cfg.Jira.MaxResults == 0 {
		cfg.Jira.MaxResults = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.Workflow.ClosedWindow <= 0 {
		cfg.Workflow.ClosedWindow = 7 * 24 * time.Hour
	}
	if len(cfg.Workflow.TestingDayBuckets) == 0 {
		cfg.Workflow.TestingDayBuckets = []float64{1, 3}
	}
	if cfg.Alerts.Window <= 0 {
		cfg.Alerts.Window = 5 * time.Minute
	}
	if len(cfg.Alerts.CriticalPriorities) == 0 {
		cfg.Alerts.CriticalPriorities = []string{"Highest", "High"}
	}
	if cfg.Alerts.RequestTimeout <= 0 {
		cfg.Alerts.RequestTimeout = 10 * time.Second
	}
	if cfg.Alerts.DedupIdleCycles <= 0 {
		// Roughly one day of idle tickets at the default poll interval.
		cfg.Alerts.DedupIdleCycles = 288
	}
	if cfg.Push.Job == "" {
		cfg.Push.Job = "jira_flow_exporter"
	}
	if cfg.Push.RequestTimeout <= 0 {
		cfg.Push.RequestTimeout = 10 * time.Second
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server       ServerConfig `yaml:"server"`
	Jira         rawJira      `yaml:"jira"`
	Workflow     rawWorkflow  `yaml:"workflow"`
	Teams        TeamsConfig  `yaml:"teams"`
	Alerts       rawAlerts    `yaml:"alerts"`
	Push         rawPush      `yaml:"push"`
	Telemetry    rawTelemetry `yaml:"telemetry"`
	PollInterval duration     `yaml:"poll_interval"`
}

type rawJira struct {
	BaseURL        string   `yaml:"base_url"`
	User           string   `yaml:"user"`
	APIToken       string   `yaml:"api_token"`
	ProjectKey     string   `yaml:"project_key"`
	RequestTimeout duration `yaml:"request_timeout"`
	MaxResults     int      `yaml:"max_results"`
}

type rawWorkflow struct {
	InProgress        []string        `yaml:"in_progress"`
	Done              []string        `yaml:"done"`
	Test              []string        `yaml:"test"`
	Review            []string        `yaml:"review"`
	ClosedWindow      duration        `yaml:"closed_window"`
	TestingDayBuckets []float64       `yaml:"testing_day_buckets"`
	Aging             []AgingCategory `yaml:"aging"`
}

type rawAlerts struct {
	WebhookURL         string   `yaml:"webhook_url"`
	CriticalPriorities []string `yaml:"critical_priorities"`
	Window             duration `yaml:"window"`
	RequestTimeout     duration `yaml:"request_timeout"`
	DedupIdleCycles    int      `yaml:"dedup_idle_cycles"`
}

type rawPush struct {
	URL            string   `yaml:"url"`
	Job            string   `yaml:"job"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: r.Server,
		Jira: JiraConfig{
			BaseURL:        strings.TrimRight(r.Jira.BaseURL, "/"),
			User:           r.Jira.User,
			APIToken:       r.Jira.APIToken,
			ProjectKey:     r.Jira.ProjectKey,
			RequestTimeout: r.Jira.RequestTimeout.Duration,
			MaxResults:     r.Jira.MaxResults,
		},
		Workflow: WorkflowConfig{
			InProgress:        r.Workflow.InProgress,
			Done:              r.Workflow.Done,
			Test:              r.Workflow.Test,
			Review:            r.Workflow.Review,
			ClosedWindow:      r.Workflow.ClosedWindow.Duration,
			TestingDayBuckets: r.Workflow.TestingDayBuckets,
			Aging:             r.Workflow.Aging,
		},
		Teams: r.Teams,
		Alerts: AlertsConfig{
			WebhookURL:         r.Alerts.WebhookURL,
			CriticalPriorities: r.Alerts.CriticalPriorities,
			Window:             r.Alerts.Window.Duration,
			RequestTimeout:     r.Alerts.RequestTimeout.Duration,
			DedupIdleCycles:    r.Alerts.DedupIdleCycles,
		},
		Push: PushConfig{
			URL:            r.Push.URL,
			Job:            r.Push.Job,
			Username:       r.Push.Username,
			Password:       r.Push.Password,
			RequestTimeout: r.Push.RequestTimeout.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
		PollInterval: r.PollInterval.Duration,
	}
}
