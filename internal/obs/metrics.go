package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inkwell_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Identity metrics.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"method", "outcome"},
	)

	sessionsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inkwell_sessions_issued_total",
		Help: "Sessions issued.",
	})

	sessionsRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inkwell_sessions_revoked_total",
		Help: "Sessions revoked.",
	})

	actionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_action_tokens_total",
			Help: "Action tokens by action and event (issued, verified, rejected).",
		},
		[]string{"action", "event"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginsTotal, sessionsIssuedTotal, sessionsRevokedTotal, actionTokensTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountLogin records a login attempt. method is password, magic-link or
// api-key; outcome is ok or denied.
func CountLogin(method, outcome string) {
	loginsTotal.WithLabelValues(method, outcome).Inc()
}

// CountSessionIssued records a newly issued session.
func CountSessionIssued() { sessionsIssuedTotal.Inc() }

// CountSessionsRevoked records n revoked sessions.
func CountSessionsRevoked(n int) {
	if n > 0 {
		sessionsRevokedTotal.Add(float64(n))
	}
}

// CountActionToken records an action-token lifecycle event.
func CountActionToken(action, event string) {
	actionTokensTotal.WithLabelValues(action, event).Inc()
}

// Instrument wraps a handler with RPS, latency and in-flight tracking.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
