package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		yaml       string
		wantErr    bool
		errSubstrs []string
	}{
		{
			name: "valid_minimal_configuration",
			yaml: `
github:
  org: "acme"
  auth:
    token: "ghp_example"
`,
		},
		{
			name: "valid_full_configuration",
			yaml: `
log_level: "debug"
github:
  api_base_url: "https://github.internal/api/v3"
  request_timeout: "20s"
  org: "acme"
  auth:
    app_id: 111111
    installation_id: 222222
    private_key_path: "/etc/wellcode/keys/acme.pem"
concurrency:
  max_inflight_requests: 15
  repo_workers: 8
  pr_workers: 4
  subresource_workers: 6
  pr_batch_size: 50
retry:
  max_attempts: 3
  initial_backoff: "2s"
  max_backoff: "1m"
rate_limit:
  min_remaining_threshold: 100
  min_reset_buffer: "1s"
  secondary_limit_backoff: "30s"
thresholds:
  stale_pr: "7d"
  long_running_pr: "2w"
report:
  output_path: "/tmp/wellcode.json"
  ops_listen_addr: ":9109"
telemetry:
  otel_enabled: true
  otel_trace_mode: "detailed"
  otel_trace_sample_ratio: 0.5
`,
		},
		{
			name: "missing_org",
			yaml: `
github:
  auth:
    token: "ghp_example"
`,
			wantErr:    true,
			errSubstrs: []string{"github.org is required"},
		},
		{
			name: "no_auth_configured",
			yaml: `
github:
  org: "acme"
`,
			wantErr:    true,
			errSubstrs: []string{"github.auth requires a token or app credentials"},
		},
		{
			name: "both_auth_modes_configured",
			yaml: `
github:
  org: "acme"
  auth:
    token: "ghp_example"
    app_id: 111111
    installation_id: 222222
    private_key_path: "/etc/wellcode/keys/acme.pem"
`,
			wantErr:    true,
			errSubstrs: []string{"not both"},
		},
		{
			name: "incomplete_app_auth",
			yaml: `
github:
  org: "acme"
  auth:
    app_id: 111111
`,
			wantErr: true,
			errSubstrs: []string{
				"github.auth.installation_id must be > 0",
				"github.auth.private_key_path is required",
			},
		},
		{
			name: "invalid_log_level",
			yaml: `
log_level: "verbose"
github:
  org: "acme"
  auth:
    token: "ghp_example"
`,
			wantErr:    true,
			errSubstrs: []string{"log_level must be one of"},
		},
		{
			name: "unknown_field_rejected",
			yaml: `
github:
  org: "acme"
  auth:
    token: "ghp_example"
surprise: true
`,
			wantErr:    true,
			errSubstrs: []string{"unmarshal yaml"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(strings.NewReader(tc.yaml))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Load() error = nil, want error containing %v", tc.errSubstrs)
				}
				for _, substr := range tc.errSubstrs {
					if !strings.Contains(err.Error(), substr) {
						t.Fatalf("Load() error = %q, want substring %q", err.Error(), substr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v, want nil", err)
			}
			if cfg == nil {
				t.Fatal("Load() config = nil, want non-nil")
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(strings.NewReader(`
github:
  org: "acme"
  auth:
    token: "ghp_example"
`))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Concurrency.MaxInflightRequests != 15 {
		t.Fatalf("MaxInflightRequests = %d, want 15", cfg.Concurrency.MaxInflightRequests)
	}
	if cfg.Concurrency.RepoWorkers != 8 {
		t.Fatalf("RepoWorkers = %d, want 8", cfg.Concurrency.RepoWorkers)
	}
	if cfg.Concurrency.PRWorkers != 4 {
		t.Fatalf("PRWorkers = %d, want 4", cfg.Concurrency.PRWorkers)
	}
	if cfg.Concurrency.SubresourceWorkers != 6 {
		t.Fatalf("SubresourceWorkers = %d, want 6", cfg.Concurrency.SubresourceWorkers)
	}
	if cfg.Concurrency.PRBatchSize != 50 {
		t.Fatalf("PRBatchSize = %d, want 50", cfg.Concurrency.PRBatchSize)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialBackoff != 2*time.Second {
		t.Fatalf("Retry.InitialBackoff = %v, want 2s", cfg.Retry.InitialBackoff)
	}
	if cfg.Thresholds.StalePR != 168*time.Hour {
		t.Fatalf("Thresholds.StalePR = %v, want 168h", cfg.Thresholds.StalePR)
	}
	if cfg.Thresholds.LongRunningPR != 336*time.Hour {
		t.Fatalf("Thresholds.LongRunningPR = %v, want 336h", cfg.Thresholds.LongRunningPR)
	}
	if cfg.Telemetry.OTELTraceMode != "sampled" {
		t.Fatalf("Telemetry.OTELTraceMode = %q, want %q", cfg.Telemetry.OTELTraceMode, "sampled")
	}
}

func TestParseFlexibleDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "standard_seconds", raw: "30s", want: 30 * time.Second},
		{name: "standard_compound", raw: "1h30m", want: 90 * time.Minute},
		{name: "days_suffix", raw: "7d", want: 168 * time.Hour},
		{name: "weeks_suffix", raw: "2w", want: 336 * time.Hour},
		{name: "fractional_days", raw: "0.5d", want: 12 * time.Hour},
		{name: "empty_string", raw: "", want: 0},
		{name: "invalid_unit", raw: "7fortnights", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseFlexibleDuration(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseFlexibleDuration(%q) error = nil, want error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlexibleDuration(%q) error = %v, want nil", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("parseFlexibleDuration(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
