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

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wellcode-ai/wellcode-cli/internal/collect"
	"github.com/wellcode-ai/wellcode-cli/internal/config"
	"github.com/wellcode-ai/wellcode-cli/internal/githubapi"
	"github.com/wellcode-ai/wellcode-cli/internal/metrics"
	"github.com/wellcode-ai/wellcode-cli/internal/report"
	"github.com/wellcode-ai/wellcode-cli/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "wellcode: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		orgFlag    string
		startFlag  string
		endFlag    string
		userFlag   string
		teamFlag   string
		outFlag    string
	)
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.StringVar(&orgFlag, "org", "", "GitHub organization (overrides config)")
	flag.StringVar(&startFlag, "start", "", "window start, RFC3339 or YYYY-MM-DD (default: 7 days ago)")
	flag.StringVar(&endFlag, "end", "", "window end, RFC3339 or YYYY-MM-DD (default: now)")
	flag.StringVar(&userFlag, "user", "", "restrict to pull requests authored by this user")
	flag.StringVar(&teamFlag, "team", "", "restrict to pull requests authored by members of this team")
	flag.StringVar(&outFlag, "out", "", "snapshot output path (overrides config; default: scratch file)")
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
	if orgFlag != "" {
		cfg.GitHub.Org = orgFlag
	}
	if outFlag != "" {
		cfg.Report.OutputPath = outFlag
	}
	if cfg.GitHub.Org == "" {
		return fmt.Errorf("organization is required (config github.org or -org)")
	}

	window, err := resolveWindow(startFlag, endFlag, time.Now())
	if err != nil {
		return err
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "wellcode",
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

	httpClient, err := buildHTTPClient(rootCtx, cfg)
	if err != nil {
		return err
	}

	governor, err := collect.NewGovernor(cfg.Concurrency.MaxInflightRequests)
	if err != nil {
		return fmt.Errorf("build admission governor: %w", err)
	}

	var ops *collect.OpsMetrics
	var opsServer *http.Server
	if cfg.Report.OpsListenAddr != "" {
		ops = collect.NewOpsMetrics()
		governor.SetObserver(ops.SetInFlight)
		opsServer = &http.Server{
			Addr:              cfg.Report.OpsListenAddr,
			Handler:           ops.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("ops server starting", zap.String("addr", cfg.Report.OpsListenAddr))
			if serveErr := opsServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
				logger.Warn("ops server failed", zap.Error(serveErr))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = opsServer.Shutdown(shutdownCtx)
		}()
	}

	requestClient := githubapi.NewClient(httpClient, governor, githubapi.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, githubapi.RateLimitPolicy{
		MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
		MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
		SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
	})

	dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, requestClient)
	if err != nil {
		return fmt.Errorf("build data client: %w", err)
	}

	orgClient, err := githubapi.NewOrgClient(httpClient, cfg.GitHub.APIBaseURL)
	if err != nil {
		return fmt.Errorf("build org client: %w", err)
	}

	orgInfo, err := orgClient.ResolveOrg(rootCtx, cfg.GitHub.Org)
	if err != nil {
		return fmt.Errorf("resolve organization %q: %w", cfg.GitHub.Org, err)
	}
	logger.Info("organization resolved",
		zap.String("org", orgInfo.Login),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End))

	teams, err := orgClient.ListTeamMembers(rootCtx, cfg.GitHub.Org)
	if err != nil {
		logger.Warn("team membership listing failed, team metrics degraded", zap.Error(err))
		teams = nil
	}
	if teamFlag != "" {
		if _, ok := teams[teamFlag]; !ok {
			return fmt.Errorf("unknown team %q", teamFlag)
		}
	}

	collector := collect.NewCollector(logger, dataClient, ops)
	result, err := collector.Run(rootCtx, collect.Options{
		Org:                  cfg.GitHub.Org,
		Window:               window,
		RepoWorkers:          cfg.Concurrency.RepoWorkers,
		PRWorkers:            cfg.Concurrency.PRWorkers,
		SubresourceWorkers:   cfg.Concurrency.SubresourceWorkers,
		PRBatchSize:          cfg.Concurrency.PRBatchSize,
		StaleThreshold:       cfg.Thresholds.StalePR,
		LongRunningThreshold: cfg.Thresholds.LongRunningPR,
		AuthorFilter:         userFlag,
		TeamFilter:           teamFlag,
		Teams:                teams,
	})
	if err != nil {
		return fmt.Errorf("collect organization metrics: %w", err)
	}

	if err := result.Org.Finalize(window, time.Now()); err != nil {
		return fmt.Errorf("finalize organization metrics: %w", err)
	}

	snapshot, err := result.Org.Snapshot(result.Report)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	path, err := report.WriteSnapshot(snapshot, cfg.Report.OutputPath)
	if err != nil {
		return err
	}
	logger.Info("snapshot written", zap.String("path", path))

	if err := report.WriteSummary(os.Stdout, snapshot); err != nil {
		return err
	}
	if snapshot.Run.Degraded() {
		logger.Warn("run finished with gaps",
			zap.Int64("repos_failed", snapshot.Run.ReposFailed),
			zap.Int64("prs_failed", snapshot.Run.PRsFailed),
			zap.Int64("subresource_misses", snapshot.Run.SubresourceMisses))
	}
	return nil
}

func buildHTTPClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	maxConcurrent := cfg.Concurrency.RepoWorkers + cfg.Concurrency.PRWorkers + cfg.Concurrency.SubresourceWorkers

	if cfg.GitHub.Auth.UsesApp() {
		httpClient, err := githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.GitHub.Auth.AppID,
			InstallationID: cfg.GitHub.Auth.InstallationID,
			PrivateKeyPath: cfg.GitHub.Auth.PrivateKeyPath,
			Timeout:        cfg.GitHub.RequestTimeout,
			MaxConcurrent:  maxConcurrent,
		})
		if err != nil {
			return nil, fmt.Errorf("build github app client: %w", err)
		}
		return httpClient, nil
	}

	httpClient, err := githubapi.NewTokenHTTPClient(ctx, githubapi.TokenAuthConfig{
		Token:         cfg.GitHub.Auth.Token,
		Timeout:       cfg.GitHub.RequestTimeout,
		MaxConcurrent: maxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("build token client: %w", err)
	}
	return httpClient, nil
}

// resolveWindow parses -start/-end, defaulting to the last seven days.
func resolveWindow(startRaw, endRaw string, now time.Time) (metrics.Window, error) {
	end := now
	if endRaw != "" {
		parsed, err := parseTimeFlag(endRaw)
		if err != nil {
			return metrics.Window{}, fmt.Errorf("parse -end: %w", err)
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -7)
	if startRaw != "" {
		parsed, err := parseTimeFlag(startRaw)
		if err != nil {
			return metrics.Window{}, fmt.Errorf("parse -start: %w", err)
		}
		start = parsed
	}

	if end.Before(start) {
		return metrics.Window{}, fmt.Errorf("window end %s is before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return metrics.Window{Start: start.UTC(), End: end.UTC()}, nil
}

func parseTimeFlag(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	return parsed, nil
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
