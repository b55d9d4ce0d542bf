package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coopd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coopd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coopd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	flagOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coopd",
			Subsystem: "flags",
			Name:      "operations_total",
			Help:      "Exclusive flag operations by entity kind, operation and outcome.",
		},
		[]string{"kind", "operation", "outcome"},
	)

	flagDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coopd",
			Subsystem: "flags",
			Name:      "operation_duration_seconds",
			Help:      "Duration of exclusive flag operations including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"kind", "operation"},
	)

	lockRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coopd",
			Subsystem: "flags",
			Name:      "lock_retries_total",
			Help:      "Transactions re-run after a lock timeout, by operation.",
		},
		[]string{"operation"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coopd",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		flagOperations,
		flagDuration,
		lockRetries,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Mounted as chi middleware it labels requests by route pattern.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := routePattern(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// FlagRecorder records exclusive flag operations.
type FlagRecorder struct{}

// ObserveFlagOperation counts one operation and its duration.
func (FlagRecorder) ObserveFlagOperation(kind, op, outcome string, elapsed time.Duration) {
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	flagOperations.WithLabelValues(kind, op, outcome).Inc()
	flagDuration.WithLabelValues(kind, op).Observe(elapsed.Seconds())
}

// RecordLockRetry counts a transaction retried after lock contention.
func RecordLockRetry(op string) {
	if op == "" {
		op = "unknown"
	}
	lockRetries.WithLabelValues(op).Inc()
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited() {
	rateLimited.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return canonicalPath(r.URL.Path)
}

// canonicalPath keeps the collection segment and drops ids, so unmatched
// paths cannot blow up label cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/*"
}
