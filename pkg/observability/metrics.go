package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal     *prometheus.CounterVec
	PrincipalResolveTotal   *prometheus.CounterVec
	PrincipalResolveSeconds prometheus.Histogram

	// Invitation lifecycle metrics
	InvitationTransitionsTotal *prometheus.CounterVec
	NotificationFailuresTotal  prometheus.Counter

	// Rate limiting
	RateLimitRejectionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arena_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_authz_decisions_total",
				Help: "Authorization decisions by check kind and outcome",
			},
			[]string{"kind", "decision"},
		),
		PrincipalResolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_principal_resolve_total",
				Help: "Principal resolutions by source",
			},
			[]string{"source"},
		),
		PrincipalResolveSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arena_principal_resolve_duration_seconds",
				Help:    "Time spent loading a principal from storage",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		InvitationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_invitation_transitions_total",
				Help: "Invitation lifecycle operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		NotificationFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arena_invitation_notification_failures_total",
				Help: "Invitation notifications that could not be delivered",
			},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_rate_limit_rejections_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"route"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.PrincipalResolveTotal,
		m.PrincipalResolveSeconds,
		m.InvitationTransitionsTotal,
		m.NotificationFailuresTotal,
		m.RateLimitRejectionsTotal,
	)

	return m
}

// RecordDecision counts an authorization decision
func (m *Metrics) RecordDecision(kind string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(kind, decision).Inc()
}

// RecordResolve counts a principal resolution served from source
// ("cache", "store", "shared" or "error")
func (m *Metrics) RecordResolve(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.PrincipalResolveTotal.WithLabelValues(source).Inc()
	if source == "store" {
		m.PrincipalResolveSeconds.Observe(d.Seconds())
	}
}

// RecordInvitation counts an invitation lifecycle operation
func (m *Metrics) RecordInvitation(operation, outcome string) {
	if m == nil {
		return
	}
	m.InvitationTransitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordNotificationFailure counts an undelivered invitation notification
func (m *Metrics) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.Inc()
}

// RecordRateLimited counts a rate limited request
func (m *Metrics) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(route).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RouteLabel returns the mux route template for r, falling back to the raw
// path when the request was not routed through mux.
func RouteLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Register it with router.Use so the route template is available.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := RouteLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
