package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Admin operations. The session's account must hold the admin role and may
// not target itself.

func adminPath(accountID, action string) string {
	return "/v1/admin/accounts/" + url.PathEscape(accountID) + "/" + action
}

// SuspendAccount blocks sign-in and revokes every session of the account.
func (s *Session) SuspendAccount(ctx context.Context, accountID, reason string) error {
	return s.call(ctx, http.MethodPost, adminPath(accountID, "suspend"), SuspendRequest{Reason: reason}, nil, http.StatusNoContent)
}

func (s *Session) ReactivateAccount(ctx context.Context, accountID string) error {
	return s.call(ctx, http.MethodPost, adminPath(accountID, "reactivate"), nil, nil, http.StatusNoContent)
}

// UnlockAccount clears a login lockout.
func (s *Session) UnlockAccount(ctx context.Context, accountID string) error {
	return s.call(ctx, http.MethodPost, adminPath(accountID, "unlock"), nil, nil, http.StatusNoContent)
}

func (s *Session) ResetAccountPassword(ctx context.Context, accountID, newPassword string) error {
	req := AdminResetPasswordRequest{NewPassword: newPassword}
	return s.call(ctx, http.MethodPost, adminPath(accountID, "reset-password"), req, nil, http.StatusNoContent)
}

func (s *Session) AccountAuditLog(ctx context.Context, accountID string, since time.Time, limit int) ([]AuditEventResponse, error) {
	var out AuditEventsResponse
	if err := s.call(ctx, http.MethodGet, adminPath(accountID, "audit")+auditQuery(since, limit), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Events, nil
}
