// Package metricsx holds the Prometheus collectors of the auth service. All
// methods are safe on a nil *Metrics so tests can leave metrics unset.
package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logins           *prometheus.CounterVec
	lockouts         prometheus.Counter
	tokensIssued     *prometheus.CounterVec
	tokensRevoked    *prometheus.CounterVec
	twoFactorChecks  *prometheus.CounterVec
	auditEvents      *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	housekeepingRows *prometheus.CounterVec
	blacklistHits    prometheus.Counter
}

// New builds a private registry with the Go and process collectors plus the
// auth service collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after repeated failed logins.",
		}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Ledger tokens issued by type.",
		}, []string{"type"}),
		tokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_revoked_total",
			Help:      "Tokens blacklisted by reason.",
		}, []string{"reason"}),
		twoFactorChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "two_factor_verifications_total",
			Help:      "Second factor verifications by method and outcome.",
		}, []string{"method", "result"}),
		auditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Audit events recorded by severity.",
		}, []string{"severity"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by channel and outcome.",
		}, []string{"channel", "result"}),
		housekeepingRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "housekeeping_deleted_rows_total",
			Help:      "Expired rows removed by housekeeping.",
		}, []string{"table"}),
		blacklistHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blacklist_rejections_total",
			Help:      "Bearer tokens rejected because they were revoked.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.logins, m.lockouts, m.tokensIssued, m.tokensRevoked,
		m.twoFactorChecks, m.auditEvents, m.notifications, m.housekeepingRows, m.blacklistHits,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Instrument wraps a single route. The route label is the mux pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.code)).Inc()
	})
}

func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) AccountLocked() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) TokenIssued(typ string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(typ).Inc()
}

func (m *Metrics) TokensRevoked(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensRevoked.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) TwoFactorVerification(method, result string) {
	if m == nil {
		return
	}
	m.twoFactorChecks.WithLabelValues(method, result).Inc()
}

func (m *Metrics) AuditEvent(severity string) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(severity).Inc()
}

func (m *Metrics) Notification(channel, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) HousekeepingDeleted(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.housekeepingRows.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) BlacklistRejected() {
	if m == nil {
		return
	}
	m.blacklistHits.Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
