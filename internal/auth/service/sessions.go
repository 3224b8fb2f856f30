package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

// Sessions bulk-revokes an account's refresh and access tokens.
//
// A login that issues tokens while RevokeAll is running may survive it: only
// rows present when the delete executes are revoked.
type Sessions struct {
	Store   store.Store
	Ledger  *Ledger
	Audit   *AuditTrail
	Metrics *metricsx.Metrics
	Clock   Clock
}

// RevokeAll deletes every refresh and access ledger row of the account
// except those of exceptSessionID, and blacklists the access tokens among
// them so they stop authenticating immediately. It returns the number of
// sessions revoked.
func (s *Sessions) RevokeAll(ctx context.Context, accountID string, reason domain.RevocationReason, exceptSessionID, performedBy string) (int, error) {
	rows, err := s.Store.Tokens().DeleteAccountSessionsExcept(ctx, accountID, exceptSessionID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	sessions := s.blacklistAccess(ctx, rows, reason)
	s.Metrics.TokensRevoked(string(reason), len(rows))

	sev := domain.SeverityMedium
	if reason == domain.ReasonSuspiciousActivity || reason == domain.ReasonAdminAction {
		sev = domain.SeverityHigh
	}
	e := event(accountID, domain.ActionSessionsRevoked, sev, domain.ClientInfo{}, map[string]string{
		"reason":   string(reason),
		"sessions": strconv.Itoa(sessions),
	})
	e.PerformedBy = performedBy
	s.Audit.Record(ctx, e)
	return sessions, nil
}

// RevokeSession ends one session of the account.
func (s *Sessions) RevokeSession(ctx context.Context, accountID, sessionID string, reason domain.RevocationReason) error {
	if sessionID == "" {
		return ErrTokenNotFound
	}
	rows, err := s.Store.Tokens().DeleteSessionTokens(ctx, accountID, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if len(rows) == 0 {
		return ErrTokenNotFound
	}
	s.blacklistAccess(ctx, rows, reason)
	s.Metrics.TokensRevoked(string(reason), len(rows))
	return nil
}

// blacklistAccess revokes the access rows and counts distinct sessions.
// Blacklist failures are logged; the ledger rows are already gone.
func (s *Sessions) blacklistAccess(ctx context.Context, rows []domain.LedgerToken, reason domain.RevocationReason) int {
	log := slogx.FromContext(ctx)
	seen := map[string]struct{}{}
	for _, t := range rows {
		if t.SessionID != "" {
			seen[t.SessionID] = struct{}{}
		}
		if t.Type != domain.TokenAccess {
			continue
		}
		if err := s.Ledger.revokeHash(ctx, t.TokenHash, domain.KindAccess, t.AccountID, reason, t.ExpiresAt); err != nil {
			log.Error("failed to blacklist access token", "account_id", t.AccountID, "session_id", t.SessionID, "err", err)
		}
	}
	return len(seen)
}

// List returns the account's live sessions, marking currentSessionID.
func (s *Sessions) List(ctx context.Context, accountID, currentSessionID string) ([]domain.Session, error) {
	rows, err := s.Store.Tokens().ListAccountTokens(ctx, accountID, domain.TokenRefresh, s.Clock.now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(rows))
	for _, t := range rows {
		out = append(out, domain.Session{
			ID:        t.SessionID,
			Device:    t.Device,
			IP:        t.IP,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
			Current:   t.SessionID == currentSessionID,
		})
	}
	return out, nil
}
