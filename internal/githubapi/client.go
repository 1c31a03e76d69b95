package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wellcode-ai/wellcode-cli/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrAuthentication marks a fatal authentication failure. Calls that fail
// with this error are never retried.
var ErrAuthentication = errors.New("github authentication failed")

// RetryConfig configures GitHub client retry behavior.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AdmissionGovernor bounds the number of in-flight remote calls across
// every worker tier. Implemented by collect.Governor.
type AdmissionGovernor interface {
	Acquire(ctx context.Context) error
	Release()
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	RateLimitWaits  int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client wraps GitHub HTTP requests with admission control, retry, and
// rate-limit pacing.
type Client struct {
	doer       HTTPDoer
	governor   AdmissionGovernor
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewClient creates a GitHub API client wrapper. A nil governor disables
// admission control.
func NewClient(doer HTTPDoer, governor AdmissionGovernor, retry RetryConfig, ratePolicy RateLimitPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		governor:   governor,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      time.Sleep,
	}
}

// Do executes a request with retry and rate-limit awareness. The admission
// slot is held only for the duration of each attempt, never across backoff
// sleeps. An HTTP 401 response is returned immediately as ErrAuthentication
// without consuming further attempts.
//
// A successful response is always handed back readable, whatever its rate
// headers say; a disallowed decision on success only delays the return,
// pacing this worker's next call. Retries apply to failed responses alone,
// since retrying a success would spend quota to re-fetch a result the
// caller already holds.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("wellcode/internal/githubapi").Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	metadata := CallMetadata{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		metadata.Attempts = attempt

		resp, err := c.attempt(ctx, req)
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("github.attempt", attempt),
				))
			}
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				return nil, metadata, err
			}
			c.Sleep(backoffForAttempt(c.retry, attempt))
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			closeBody(resp)
			if span != nil {
				span.SetStatus(codes.Error, "authentication failed")
			}
			return nil, metadata, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrAuthentication)
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		metadata.LastRateHeaders = headers
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastDecision = decision

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
				attribute.Int64("github.rate_limit_reset_unix", headers.ResetUnix),
				attribute.Bool("github.rate_limit_allow", decision.Allow),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if !decision.Allow {
				metadata.RateLimitWaits++
				wait := decision.WaitFor
				if wait <= 0 {
					wait = backoffForAttempt(c.retry, attempt)
				}
				c.Sleep(wait)
			}
			if span != nil {
				span.SetStatus(codes.Ok, "request completed")
			}
			return resp, metadata, nil
		}

		if !decision.Allow {
			metadata.RateLimitWaits++
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, "rate-limited")
				}
				return resp, metadata, nil
			}
			closeBody(resp)
			wait := decision.WaitFor
			if wait <= 0 {
				wait = backoffForAttempt(c.retry, attempt)
			}
			c.Sleep(wait)
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, fmt.Sprintf("transient status %d", resp.StatusCode))
				}
				return resp, metadata, nil
			}
			closeBody(resp)
			c.Sleep(backoffForAttempt(c.retry, attempt))
			continue
		}

		if span != nil {
			span.SetStatus(codes.Ok, "request completed")
		}
		return resp, metadata, nil
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	return nil, metadata, fmt.Errorf("request attempts exhausted")
}

func (c *Client) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.governor != nil {
		if err := c.governor.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("acquire admission slot: %w", err)
		}
		defer c.governor.Release()
	}
	return c.doer.Do(req.Clone(ctx))
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
