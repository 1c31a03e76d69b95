package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is the root application configuration.
type Config struct {
	LogLevel    string
	GitHub      GitHubConfig
	Concurrency ConcurrencyConfig
	Retry       RetryConfig
	RateLimit   RateLimitConfig
	Thresholds  ThresholdsConfig
	Report      ReportConfig
	Telemetry   TelemetryConfig
}

// GitHubConfig configures GitHub API access for one organization.
type GitHubConfig struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	Org            string
	Auth           AuthConfig
}

// AuthConfig selects between personal-access-token and GitHub App auth.
type AuthConfig struct {
	Token          string `yaml:"token"`
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// UsesApp reports whether GitHub App installation auth is configured.
func (a AuthConfig) UsesApp() bool {
	return a.AppID > 0 || a.InstallationID > 0 || a.PrivateKeyPath != ""
}

// ConcurrencyConfig sizes the admission governor and the three work tiers.
type ConcurrencyConfig struct {
	MaxInflightRequests int `yaml:"max_inflight_requests"`
	RepoWorkers         int `yaml:"repo_workers"`
	PRWorkers           int `yaml:"pr_workers"`
	SubresourceWorkers  int `yaml:"subresource_workers"`
	PRBatchSize         int `yaml:"pr_batch_size"`
}

// RetryConfig configures remote-call retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RateLimitConfig configures rate-limit pacing.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// ThresholdsConfig configures bottleneck detection cutoffs.
type ThresholdsConfig struct {
	StalePR       time.Duration
	LongRunningPR time.Duration
}

// ReportConfig configures run output.
type ReportConfig struct {
	OutputPath    string `yaml:"output_path"`
	OpsListenAddr string `yaml:"ops_listen_addr"`
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = append(errs, "log_level must be one of debug|info|warn|error")
	}

	if strings.TrimSpace(c.GitHub.Org) == "" {
		errs = append(errs, "github.org is required")
	}

	hasToken := strings.TrimSpace(c.GitHub.Auth.Token) != ""
	if hasToken && c.GitHub.Auth.UsesApp() {
		errs = append(errs, "github.auth must configure either token or app credentials, not both")
	}
	if !hasToken && !c.GitHub.Auth.UsesApp() {
		errs = append(errs, "github.auth requires a token or app credentials")
	}
	if c.GitHub.Auth.UsesApp() {
		if c.GitHub.Auth.AppID <= 0 {
			errs = append(errs, "github.auth.app_id must be > 0")
		}
		if c.GitHub.Auth.InstallationID <= 0 {
			errs = append(errs, "github.auth.installation_id must be > 0")
		}
		if c.GitHub.Auth.PrivateKeyPath == "" {
			errs = append(errs, "github.auth.private_key_path is required")
		}
	}

	if c.Concurrency.MaxInflightRequests <= 0 {
		errs = append(errs, "concurrency.max_inflight_requests must be > 0")
	}
	if c.Concurrency.RepoWorkers <= 0 {
		errs = append(errs, "concurrency.repo_workers must be > 0")
	}
	if c.Concurrency.PRWorkers <= 0 {
		errs = append(errs, "concurrency.pr_workers must be > 0")
	}
	if c.Concurrency.SubresourceWorkers <= 0 {
		errs = append(errs, "concurrency.subresource_workers must be > 0")
	}
	if c.Concurrency.PRBatchSize <= 0 {
		errs = append(errs, "concurrency.pr_batch_size must be > 0")
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Retry.InitialBackoff <= 0 {
		errs = append(errs, "retry.initial_backoff must be > 0")
	}

	if c.Thresholds.StalePR <= 0 {
		errs = append(errs, "thresholds.stale_pr must be > 0")
	}
	if c.Thresholds.LongRunningPR <= 0 {
		errs = append(errs, "thresholds.long_running_pr must be > 0")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.GitHub.RequestTimeout <= 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.Concurrency.MaxInflightRequests <= 0 {
		cfg.Concurrency.MaxInflightRequests = 15
	}
	if cfg.Concurrency.RepoWorkers <= 0 {
		cfg.Concurrency.RepoWorkers = 8
	}
	if cfg.Concurrency.PRWorkers <= 0 {
		cfg.Concurrency.PRWorkers = 4
	}
	if cfg.Concurrency.SubresourceWorkers <= 0 {
		cfg.Concurrency.SubresourceWorkers = 6
	}
	if cfg.Concurrency.PRBatchSize <= 0 {
		cfg.Concurrency.PRBatchSize = 50
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = 2 * time.Second
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = time.Minute
	}
	if cfg.RateLimit.MinResetBuffer <= 0 {
		cfg.RateLimit.MinResetBuffer = time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff <= 0 {
		cfg.RateLimit.SecondaryLimitBackoff = 30 * time.Second
	}
	if cfg.Thresholds.StalePR <= 0 {
		cfg.Thresholds.StalePR = 168 * time.Hour
	}
	if cfg.Thresholds.LongRunningPR <= 0 {
		cfg.Thresholds.LongRunningPR = 336 * time.Hour
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "sampled"
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
	LogLevel    string            `yaml:"log_level"`
	GitHub      rawGitHub         `yaml:"github"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Retry       rawRetry          `yaml:"retry"`
	RateLimit   rawRateLimit      `yaml:"rate_limit"`
	Thresholds  rawThresholds     `yaml:"thresholds"`
	Report      ReportConfig      `yaml:"report"`
	Telemetry   rawTelemetry      `yaml:"telemetry"`
}

type rawGitHub struct {
	APIBaseURL     string     `yaml:"api_base_url"`
	RequestTimeout duration   `yaml:"request_timeout"`
	Org            string     `yaml:"org"`
	Auth           AuthConfig `yaml:"auth"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawThresholds struct {
	StalePR       duration `yaml:"stale_pr"`
	LongRunningPR duration `yaml:"long_running_pr"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		LogLevel: r.LogLevel,
		GitHub: GitHubConfig{
			APIBaseURL:     r.GitHub.APIBaseURL,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
			Org:            r.GitHub.Org,
			Auth:           r.GitHub.Auth,
		},
		Concurrency: r.Concurrency,
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Thresholds: ThresholdsConfig{
			StalePR:       r.Thresholds.StalePR.Duration,
			LongRunningPR: r.Thresholds.LongRunningPR.Duration,
		},
		Report: r.Report,
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
