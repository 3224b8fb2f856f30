package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// Lockout tracks failed password attempts per account.
type Lockout struct {
	Store     store.Store
	Audit     *AuditTrail
	Notifier  Notifier
	Metrics   *metricsx.Metrics
	Threshold int
	Duration  time.Duration
	Clock     Clock
}

// LockoutResult is the state after a recorded failure.
type LockoutResult struct {
	FailedCount int
	Locked      bool
	LockedUntil time.Time
}

func (l *Lockout) threshold() int {
	if l.Threshold <= 0 {
		return DefaultLockoutThreshold
	}
	return l.Threshold
}

func (l *Lockout) duration() time.Duration {
	if l.Duration <= 0 {
		return DefaultLockoutDuration
	}
	return l.Duration
}

// IsLocked reports whether a is locked right now and, if so, for how long.
// Call it before verifying a password.
func (l *Lockout) IsLocked(a domain.Account) (bool, time.Duration) {
	now := l.Clock.now()
	if !a.IsLocked(now) {
		return false, 0
	}
	return true, a.LockedUntil.Sub(now)
}

// RecordFailure counts one failed attempt. Crossing the threshold locks the
// account, writes a critical audit event and alerts the account holder.
func (l *Lockout) RecordFailure(ctx context.Context, a domain.Account, client domain.ClientInfo) (LockoutResult, error) {
	now := l.Clock.now()
	threshold := l.threshold()
	until := now.Add(l.duration())

	state, err := l.Store.Accounts().RecordLoginFailure(ctx, a.ID, threshold, until, now)
	if err != nil {
		return LockoutResult{}, fmt.Errorf("record login failure: %w", err)
	}

	res := LockoutResult{FailedCount: state.FailedCount}
	if state.LockedUntil != nil && now.Before(*state.LockedUntil) {
		res.Locked = true
		res.LockedUntil = *state.LockedUntil
	}

	// Exactly one request observes the transition.
	if res.Locked && state.FailedCount == threshold {
		slogx.FromContext(ctx).Warn("account locked after repeated failures",
			"account_id", a.ID, "failed_count", state.FailedCount, "locked_until", res.LockedUntil)
		l.Metrics.AccountLocked()

		details := map[string]string{
			"failed_attempts": strconv.Itoa(state.FailedCount),
			"locked_until":    res.LockedUntil.Format(time.RFC3339),
		}
		l.Audit.Record(ctx, event(a.ID, domain.ActionAccountLocked, domain.SeverityCritical, client, details))
		sendAlert(ctx, l.Notifier, a.Email, domain.SecurityAlert{
			AccountID: a.ID,
			Action:    domain.ActionAccountLocked,
			Message:   "Your account was locked after repeated failed sign-in attempts.",
			Details:   details,
			IP:        client.IP,
			At:        now,
		})
	}
	return res, nil
}

// RecordSuccess clears the counter and any lock.
func (l *Lockout) RecordSuccess(ctx context.Context, accountID string) error {
	if err := l.Store.Accounts().ResetLoginFailures(ctx, accountID, l.Clock.now()); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}
