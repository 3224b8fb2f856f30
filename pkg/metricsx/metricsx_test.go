package metricsx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.LoginAttempt("success")
	m.AccountLocked()
	m.TokensRevoked("logout", 3)

	h := m.Instrument("GET /x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New("proptrust_auth")

	m.LoginAttempt("success")
	m.LoginAttempt("success")
	m.LoginAttempt("invalid_credentials")
	m.TokensRevoked("all_sessions_revoked", 4)
	m.TokensRevoked("logout", 0)

	require.Equal(t, 2.0, counterValue(t, m.logins.WithLabelValues("success")))
	require.Equal(t, 1.0, counterValue(t, m.logins.WithLabelValues("invalid_credentials")))
	require.Equal(t, 4.0, counterValue(t, m.tokensRevoked.WithLabelValues("all_sessions_revoked")))
}

func TestInstrumentAndHandler(t *testing.T) {
	m := New("proptrust_auth")

	h := m.Instrument("POST /v1/auth/login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))

	require.Equal(t, 1.0, counterValue(t,
		m.httpRequestsTotal.WithLabelValues(http.MethodPost, "POST /v1/auth/login", "401")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "proptrust_auth_http_requests_total"))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}
