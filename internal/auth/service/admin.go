package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

// AdminService holds operator actions on other accounts. Callers must
// already hold the admin role; every action is audited with PerformedBy.
type AdminService struct {
	Store       store.Store
	Credentials *Credentials
	Sessions    *Sessions
	Audit       *AuditTrail
	Notifier    Notifier
	Clock       Clock
}

func (s *AdminService) target(ctx context.Context, admin httpx.AuthContext, accountID string) (domain.Account, error) {
	if accountID == admin.AccountID {
		return domain.Account{}, newError(KindForbidden, "administrators cannot act on their own account")
	}
	a, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return a, nil
}

func (s *AdminService) record(ctx context.Context, admin httpx.AuthContext, accountID string, action domain.AuditAction, sev domain.Severity, details map[string]string) {
	e := event(accountID, action, sev, domain.ClientInfo{}, details)
	e.PerformedBy = admin.AccountID
	s.Audit.Record(ctx, e)
}

// Suspend blocks the account and revokes all of its sessions.
func (s *AdminService) Suspend(ctx context.Context, admin httpx.AuthContext, accountID, reason string) error {
	a, err := s.target(ctx, admin, accountID)
	if err != nil {
		return err
	}
	if a.Status == domain.StatusDeleted {
		return newError(KindInvalidRequest, "account is deleted")
	}
	if err := s.Store.Accounts().UpdateStatus(ctx, a.ID, domain.StatusSuspended, s.Clock.now()); err != nil {
		return fmt.Errorf("suspend account: %w", err)
	}
	s.record(ctx, admin, a.ID, domain.ActionAccountSuspended, domain.SeverityHigh, map[string]string{"reason": reason})
	if _, err := s.Sessions.RevokeAll(ctx, a.ID, domain.ReasonAdminAction, "", admin.AccountID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke sessions of suspended account", "account_id", a.ID, "err", err)
	}
	return nil
}

// Reactivate returns a suspended account to active.
func (s *AdminService) Reactivate(ctx context.Context, admin httpx.AuthContext, accountID string) error {
	a, err := s.target(ctx, admin, accountID)
	if err != nil {
		return err
	}
	if a.Status != domain.StatusSuspended {
		return newError(KindInvalidRequest, "account is not suspended")
	}
	if err := s.Store.Accounts().UpdateStatus(ctx, a.ID, domain.StatusActive, s.Clock.now()); err != nil {
		return fmt.Errorf("reactivate account: %w", err)
	}
	s.record(ctx, admin, a.ID, domain.ActionAccountReactivated, domain.SeverityMedium, nil)
	return nil
}

// Unlock clears a login lockout before it expires.
func (s *AdminService) Unlock(ctx context.Context, admin httpx.AuthContext, accountID string) error {
	a, err := s.target(ctx, admin, accountID)
	if err != nil {
		return err
	}
	if err := s.Store.Accounts().ResetLoginFailures(ctx, a.ID, s.Clock.now()); err != nil {
		return fmt.Errorf("unlock account: %w", err)
	}
	s.record(ctx, admin, a.ID, domain.ActionAccountUnlocked, domain.SeverityMedium, nil)
	return nil
}

// ResetPassword sets a password on the holder's behalf and revokes every
// session. History rules still apply.
func (s *AdminService) ResetPassword(ctx context.Context, admin httpx.AuthContext, accountID, password string) error {
	a, err := s.target(ctx, admin, accountID)
	if err != nil {
		return err
	}
	if err := s.Credentials.SetPassword(ctx, a, password, domain.PasswordReasonAdminReset, admin.AccountID, nil); err != nil {
		return err
	}
	s.record(ctx, admin, a.ID, domain.ActionPasswordReset, domain.SeverityHigh, map[string]string{"reason": string(domain.PasswordReasonAdminReset)})
	if _, err := s.Sessions.RevokeAll(ctx, a.ID, domain.ReasonAdminAction, "", admin.AccountID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke sessions after admin reset", "account_id", a.ID, "err", err)
	}
	sendAlert(ctx, s.Notifier, a.Email, domain.SecurityAlert{
		AccountID: a.ID,
		Action:    domain.ActionPasswordReset,
		Message:   "An administrator reset the password on your account.",
		At:        s.Clock.now(),
	})
	return nil
}

// AuditLog lists events for any account.
func (s *AdminService) AuditLog(ctx context.Context, accountID string, since time.Time, limit int) ([]domain.AuditEvent, error) {
	return s.Audit.List(ctx, accountID, since, limit)
}
