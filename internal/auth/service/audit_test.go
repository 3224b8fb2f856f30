package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

func TestDetectSuspicious(t *testing.T) {
	type login struct {
		ip, country string
	}
	repeat := func(n int, l login) []login {
		out := make([]login, n)
		for i := range out {
			out[i] = l
		}
		return out
	}
	manyIPs := func(n int) []login {
		out := make([]login, n)
		for i := range out {
			out[i] = login{ip: fmt.Sprintf("198.51.100.%d", i+1), country: "AU"}
		}
		return out
	}

	cases := []struct {
		name   string
		logins []login
		want   []string
	}{
		{"quiet", repeat(3, login{"203.0.113.1", "AU"}), nil},
		{"three ips is fine", manyIPs(3), nil},
		{"four ips", manyIPs(4), []string{HeuristicMultipleIPs}},
		{"two countries", []login{{"203.0.113.1", "AU"}, {"203.0.113.1", "NZ"}}, []string{HeuristicMultipleCountries}},
		{"velocity", repeat(11, login{"203.0.113.1", "AU"}), []string{HeuristicLoginVelocity}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			a := h.activeAccount(t, "audit@example.com")

			for _, l := range tc.logins {
				h.svc.Audit.Record(ctx, event(a.ID, domain.ActionLoginSuccess, domain.SeverityLow,
					domain.ClientInfo{IP: l.ip, Country: l.country}, nil))
			}
			got, err := h.svc.Audit.DetectSuspicious(ctx, a.ID, time.Hour)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDetectSuspicious_IgnoresOldEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "window@example.com")

	for i := range 5 {
		h.svc.Audit.Record(ctx, event(a.ID, domain.ActionLoginSuccess, domain.SeverityLow,
			domain.ClientInfo{IP: fmt.Sprintf("192.0.2.%d", i)}, nil))
	}
	h.clock.Advance(2 * time.Hour)

	got, err := h.svc.Audit.DetectSuspicious(ctx, a.ID, time.Hour)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLogin_SuspiciousActivityRaisesAlert(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "traveller@example.com")

	for _, country := range []string{"AU", "BR"} {
		_, err := h.svc.Auth.Login(ctx, a.Email, testPassword, domain.ClientInfo{IP: "203.0.113.9", Country: country})
		require.NoError(t, err)
	}

	require.Contains(t, h.auditActions(t, a.ID), domain.ActionSuspiciousActivity)
	require.Equal(t, 1, h.notifier.alertCount(domain.ActionSuspiciousActivity))
}

func TestAuditRecord_NeverFailsCaller(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.st.Close())

	require.NotPanics(t, func() {
		h.svc.Audit.Record(context.Background(), event("acc", domain.ActionLogout, domain.SeverityLow, domain.ClientInfo{}, nil))
	})
}
