package githubapi

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		headers    map[string]string
		statusCode int
		want       RateLimitHeaders
	}{
		{
			name: "primary_headers",
			headers: map[string]string{
				"X-RateLimit-Remaining": "4210",
				"X-RateLimit-Limit":     "5000",
				"X-RateLimit-Used":      "790",
				"X-RateLimit-Reset":     "1700000000",
			},
			statusCode: http.StatusOK,
			want: RateLimitHeaders{
				Remaining: 4210,
				Limit:     5000,
				Used:      790,
				ResetUnix: 1700000000,
			},
		},
		{
			name:       "too_many_requests_marks_secondary",
			headers:    map[string]string{"Retry-After": "42"},
			statusCode: http.StatusTooManyRequests,
			want: RateLimitHeaders{
				RetryAfter:       42 * time.Second,
				SecondaryLimited: true,
			},
		},
		{
			name:       "forbidden_with_retry_after_marks_secondary",
			headers:    map[string]string{"Retry-After": "10"},
			statusCode: http.StatusForbidden,
			want: RateLimitHeaders{
				RetryAfter:       10 * time.Second,
				SecondaryLimited: true,
			},
		},
		{
			name:       "forbidden_without_retry_after_is_not_secondary",
			headers:    map[string]string{"X-RateLimit-Remaining": "100", "X-RateLimit-Limit": "5000"},
			statusCode: http.StatusForbidden,
			want: RateLimitHeaders{
				Remaining: 100,
				Limit:     5000,
			},
		},
		{
			name:       "garbage_headers_parse_to_zero",
			headers:    map[string]string{"X-RateLimit-Remaining": "lots", "X-RateLimit-Reset": "soon"},
			statusCode: http.StatusOK,
			want:       RateLimitHeaders{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			header := http.Header{}
			for key, value := range tc.headers {
				header.Set(key, value)
			}

			got := ParseRateLimitHeaders(header, tc.statusCode)
			if got != tc.want {
				t.Fatalf("ParseRateLimitHeaders() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRateLimitPolicyEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := RateLimitPolicy{
		MinRemainingThreshold: 100,
		MinResetBuffer:        time.Second,
		SecondaryLimitBackoff: 30 * time.Second,
		Now:                   func() time.Time { return now },
	}

	testCases := []struct {
		name        string
		headers     RateLimitHeaders
		wantAllow   bool
		wantWaitFor time.Duration
		wantReason  string
	}{
		{
			name:        "secondary_limit_uses_configured_backoff",
			headers:     RateLimitHeaders{SecondaryLimited: true, RetryAfter: 5 * time.Second},
			wantAllow:   false,
			wantWaitFor: 30 * time.Second,
			wantReason:  "secondary_limit",
		},
		{
			name:        "secondary_limit_honors_longer_retry_after",
			headers:     RateLimitHeaders{SecondaryLimited: true, RetryAfter: 90 * time.Second},
			wantAllow:   false,
			wantWaitFor: 90 * time.Second,
			wantReason:  "secondary_limit",
		},
		{
			name: "exhausted_waits_until_reset_plus_buffer",
			headers: RateLimitHeaders{
				Remaining: 0,
				Limit:     5000,
				ResetUnix: now.Add(5 * time.Second).Unix(),
			},
			wantAllow:   false,
			wantWaitFor: 5*time.Second + time.Second,
			wantReason:  "remaining_exhausted",
		},
		{
			name: "exhausted_with_elapsed_reset_allows",
			headers: RateLimitHeaders{
				Remaining: 0,
				Limit:     5000,
				ResetUnix: now.Add(-time.Minute).Unix(),
			},
			wantAllow:  true,
			wantReason: "reset_elapsed",
		},
		{
			name: "low_remaining_defers_to_caller_backoff",
			headers: RateLimitHeaders{
				Remaining: 40,
				Limit:     5000,
				ResetUnix: now.Add(time.Hour).Unix(),
			},
			wantAllow:   false,
			wantWaitFor: 0,
			wantReason:  "remaining_low",
		},
		{
			name: "healthy_budget_allows",
			headers: RateLimitHeaders{
				Remaining: 4000,
				Limit:     5000,
				ResetUnix: now.Add(time.Hour).Unix(),
			},
			wantAllow:  true,
			wantReason: "within_budget",
		},
		{
			name:       "absent_headers_allow",
			headers:    RateLimitHeaders{},
			wantAllow:  true,
			wantReason: "headers_absent",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision := policy.Evaluate(tc.headers)
			if decision.Allow != tc.wantAllow {
				t.Fatalf("Evaluate() Allow = %v, want %v", decision.Allow, tc.wantAllow)
			}
			if decision.WaitFor != tc.wantWaitFor {
				t.Fatalf("Evaluate() WaitFor = %v, want %v", decision.WaitFor, tc.wantWaitFor)
			}
			if decision.Reason != tc.wantReason {
				t.Fatalf("Evaluate() Reason = %q, want %q", decision.Reason, tc.wantReason)
			}
		})
	}
}
