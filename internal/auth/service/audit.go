package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/idx"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

// Suspicious-activity heuristics reported by DetectSuspicious.
const (
	HeuristicMultipleIPs       = "multiple_ips"
	HeuristicMultipleCountries = "multiple_countries"
	HeuristicLoginVelocity     = "login_velocity"
)

const (
	suspiciousMaxIPs       = 3
	suspiciousMaxCountries = 1
	suspiciousMaxLogins    = 10

	auditWriteTimeout = 2 * time.Second
	auditScanLimit    = 500
)

// AuditTrail appends security events and answers heuristics over them.
type AuditTrail struct {
	Store   store.Store
	Metrics *metricsx.Metrics
	Clock   Clock
}

// Record appends e. It never fails the caller: write errors are logged and
// dropped. Must not be called from inside a store transaction.
func (a *AuditTrail) Record(ctx context.Context, e domain.AuditEvent) {
	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.Clock.now()
	}
	if e.Severity == "" {
		e.Severity = domain.SeverityLow
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := a.Store.AuditEvents().AppendEvent(ctx, e); err != nil {
		slogx.FromContext(ctx).Error("audit append failed",
			"account_id", e.AccountID, "action", e.Action, "severity", e.Severity, "err", err)
		return
	}
	a.Metrics.AuditEvent(string(e.Severity))
}

// event is a small constructor for the common case.
func event(accountID string, action domain.AuditAction, sev domain.Severity, client domain.ClientInfo, details map[string]string) domain.AuditEvent {
	return domain.AuditEvent{
		AccountID: accountID,
		Action:    action,
		Severity:  sev,
		Details:   details,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Country:   client.Country,
	}
}

// List returns an account's events newer than since, newest first.
func (a *AuditTrail) List(ctx context.Context, accountID string, since time.Time, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 || limit > auditScanLimit {
		limit = 100
	}
	events, err := a.Store.AuditEvents().ListAccountEvents(ctx, accountID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}

// DetectSuspicious inspects successful logins within window and returns the
// heuristics that matched, in a stable order. An empty result means nothing
// stood out.
func (a *AuditTrail) DetectSuspicious(ctx context.Context, accountID string, window time.Duration) ([]string, error) {
	since := a.Clock.now().Add(-window)
	events, err := a.Store.AuditEvents().ListAccountEvents(ctx, accountID, since, auditScanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}

	ips := map[string]struct{}{}
	countries := map[string]struct{}{}
	logins := 0
	for _, e := range events {
		if e.Action != domain.ActionLoginSuccess {
			continue
		}
		logins++
		if e.IP != "" {
			ips[e.IP] = struct{}{}
		}
		if e.Country != "" {
			countries[e.Country] = struct{}{}
		}
	}

	var matched []string
	if len(ips) > suspiciousMaxIPs {
		matched = append(matched, HeuristicMultipleIPs)
	}
	if len(countries) > suspiciousMaxCountries {
		matched = append(matched, HeuristicMultipleCountries)
	}
	if logins > suspiciousMaxLogins {
		matched = append(matched, HeuristicLoginVelocity)
	}
	return matched, nil
}
