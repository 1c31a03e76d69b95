package collect

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wellcode-ai/wellcode-cli/internal/telemetry"
)

// OpsMetrics holds the run's operational counters on a private registry.
type OpsMetrics struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	retriesTotal   prometheus.Counter
	rateLimitWaits prometheus.Counter
	reposFailed    prometheus.Counter
	prsFailed      prometheus.Counter
	inFlightCalls  prometheus.Gauge
}

// NewOpsMetrics creates and registers the operational counters.
func NewOpsMetrics() *OpsMetrics {
	registry := prometheus.NewRegistry()

	ops := &OpsMetrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcode_github_requests_total",
			Help: "GitHub API request attempts by endpoint and normalized status.",
		}, []string{"endpoint", "status"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wellcode_github_retries_total",
			Help: "GitHub API attempts beyond the first for one logical call.",
		}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wellcode_rate_limit_waits_total",
			Help: "Calls that slept on a rate-limit decision before succeeding.",
		}),
		reposFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wellcode_repos_failed_total",
			Help: "Repositories skipped after a top-level fetch failure.",
		}),
		prsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wellcode_prs_failed_total",
			Help: "Pull requests skipped after a processing failure.",
		}),
		inFlightCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wellcode_in_flight_remote_calls",
			Help: "Remote calls currently holding an admission slot.",
		}),
	}

	registry.MustRegister(
		ops.requestsTotal,
		ops.retriesTotal,
		ops.rateLimitWaits,
		ops.reposFailed,
		ops.prsFailed,
		ops.inFlightCalls,
	)
	return ops
}

// ObserveCall records one logical call's attempt count and rate decisions.
func (o *OpsMetrics) ObserveCall(endpoint string, status string, attempts int, rateLimitWaits int) {
	if o == nil {
		return
	}
	if attempts < 1 {
		attempts = 1
	}
	o.requestsTotal.WithLabelValues(endpoint, status).Add(float64(attempts))
	if attempts > 1 {
		o.retriesTotal.Add(float64(attempts - 1))
	}
	if rateLimitWaits > 0 {
		o.rateLimitWaits.Add(float64(rateLimitWaits))
	}
}

// ObserveRepoFailure counts one skipped repository.
func (o *OpsMetrics) ObserveRepoFailure() {
	if o == nil {
		return
	}
	o.reposFailed.Inc()
}

// ObservePRFailure counts one skipped pull request.
func (o *OpsMetrics) ObservePRFailure() {
	if o == nil {
		return
	}
	o.prsFailed.Inc()
}

// SetInFlight updates the admission slot gauge.
func (o *OpsMetrics) SetInFlight(inFlight int64) {
	if o == nil {
		return
	}
	o.inFlightCalls.Set(float64(inFlight))
}

// Handler wires the metrics and health endpoints on a single mux.
func (o *OpsMetrics) Handler() http.Handler {
	router := chi.NewRouter()
	router.Handle("/metrics", wrapOpsHandler("metrics", promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})))
	router.Handle("/healthz", wrapOpsHandler("healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})))
	return router
}

func wrapOpsHandler(route string, handler http.Handler) http.Handler {
	if strings.EqualFold(telemetry.TraceMode(), "off") {
		return handler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("wellcode/internal/collect").Start(
			r.Context(),
			"http.server."+route,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
