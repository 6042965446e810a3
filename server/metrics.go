package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gateway"

// metrics holds the Prometheus metrics for the gateway.
type metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	logoutTotal     *prometheus.CounterVec
	proxyErrors     *prometheus.CounterVec
}

// Refresh outcomes.
const (
	refreshOutcomeSuccess  = "success"
	refreshOutcomeRotated  = "rotated"
	refreshOutcomeMissing  = "missing"
	refreshOutcomeRejected = "rejected"
	refreshOutcomeError    = "error"
)

// Upstream revoke outcomes on logout.
const (
	logoutUpstreamOK      = "ok"
	logoutUpstreamFailed  = "failed"
	logoutUpstreamSkipped = "skipped"
)

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the gateway",
		}, []string{"route", "method", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_total",
			Help:      "Access token refresh attempts by outcome",
		}, []string{"outcome"}),

		logoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logout_total",
			Help:      "Logouts by upstream revoke outcome",
		}, []string{"upstream"}),

		proxyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proxy_errors_total",
			Help:      "Upstream transport failures seen by the proxy routes",
		}, []string{"route"}),
	}
	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration, m.refreshTotal, m.logoutTotal, m.proxyErrors} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("[server newMetrics] %w", err)
		}
	}
	return m, nil
}

func (m *metrics) refresh(outcome string) {
	m.refreshTotal.WithLabelValues(outcome).Inc()
}

func (m *metrics) logout(outcome string) {
	m.logoutTotal.WithLabelValues(outcome).Inc()
}

func (m *metrics) proxyError(route string) {
	m.proxyErrors.WithLabelValues(route).Inc()
}

// MetricsMiddleware records request counts and latency per route pattern.
func (s *Server) MetricsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := recorderFor(w)
		next(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.Status())).Inc()
		s.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
