package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/idx"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
)

const (
	DefaultBlacklistGrace = 5 * time.Minute

	twoFactorCodeDigits = 6
)

// Ledger issues and redeems persisted tokens and fronts the blacklist.
// Every value is stored as a SHA-256 fingerprint; plaintext is returned to
// the caller exactly once.
type Ledger struct {
	Store     store.Store
	Blacklist store.Blacklist
	Metrics   *metricsx.Metrics
	Grace     time.Duration
	Clock     Clock
}

// Issue creates a random token of typ for the account and returns the
// plaintext alongside the stored record.
func (l *Ledger) Issue(ctx context.Context, accountID string, typ domain.TokenType, ttl time.Duration, meta domain.TokenMetadata) (string, domain.LedgerToken, error) {
	return l.issueIn(ctx, l.Store, accountID, typ, ttl, meta)
}

func (l *Ledger) issueIn(ctx context.Context, q store.Store, accountID string, typ domain.TokenType, ttl time.Duration, meta domain.TokenMetadata) (string, domain.LedgerToken, error) {
	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.LedgerToken{}, err
	}
	t, err := l.record(ctx, q, accountID, typ, value, l.Clock.now().Add(ttl), meta)
	if err != nil {
		return "", domain.LedgerToken{}, err
	}
	return value, t, nil
}

// record stores the fingerprint of an externally generated value, such as a
// signed access token.
func (l *Ledger) record(ctx context.Context, q store.Store, accountID string, typ domain.TokenType, value string, expiresAt time.Time, meta domain.TokenMetadata) (domain.LedgerToken, error) {
	t := domain.LedgerToken{
		ID:        idx.New().String(),
		AccountID: accountID,
		TokenHash: cryptox.FingerprintToken(value),
		Type:      typ,
		SessionID: meta.SessionID,
		Device:    meta.Device,
		IP:        meta.IP,
		AMR:       meta.AMR,
		ExpiresAt: expiresAt,
		CreatedAt: l.Clock.now(),
	}
	if err := q.Tokens().CreateToken(ctx, t); err != nil {
		return domain.LedgerToken{}, fmt.Errorf("store %s token: %w", typ, err)
	}
	l.Metrics.TokenIssued(string(typ))
	return t, nil
}

// IssueCode replaces any outstanding two-factor code for the account with a
// fresh numeric one.
func (l *Ledger) IssueCode(ctx context.Context, accountID string, ttl time.Duration) (string, domain.LedgerToken, error) {
	code, err := cryptox.GenerateNumericCode(twoFactorCodeDigits)
	if err != nil {
		return "", domain.LedgerToken{}, err
	}

	var t domain.LedgerToken
	err = l.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Tokens().DeleteAccountTokens(ctx, accountID, domain.TokenTwoFactorCode); err != nil {
			return fmt.Errorf("clear previous codes: %w", err)
		}
		var err error
		t, err = l.record(ctx, tx, accountID, domain.TokenTwoFactorCode, code, l.Clock.now().Add(ttl), domain.TokenMetadata{})
		return err
	})
	if err != nil {
		return "", domain.LedgerToken{}, err
	}
	return code, t, nil
}

// Redeem atomically finds and deletes an unexpired one-time token. A second
// redemption of the same value returns ErrTokenNotFound.
func (l *Ledger) Redeem(ctx context.Context, typ domain.TokenType, value string) (domain.LedgerToken, error) {
	return l.redeemIn(ctx, l.Store, typ, value)
}

func (l *Ledger) redeemIn(ctx context.Context, q store.Store, typ domain.TokenType, value string) (domain.LedgerToken, error) {
	if value == "" {
		return domain.LedgerToken{}, ErrTokenNotFound
	}
	t, err := q.Tokens().ConsumeToken(ctx, typ, cryptox.FingerprintToken(value), l.Clock.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LedgerToken{}, ErrTokenNotFound
		}
		return domain.LedgerToken{}, fmt.Errorf("redeem %s token: %w", typ, err)
	}
	return t, nil
}

// RedeemCode consumes a two-factor code scoped to one account.
func (l *Ledger) RedeemCode(ctx context.Context, accountID, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	_, err := l.Store.Tokens().ConsumeAccountToken(ctx, accountID, domain.TokenTwoFactorCode, cryptox.FingerprintToken(code), l.Clock.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("redeem two-factor code: %w", err)
	}
	return true, nil
}

// Peek returns an unexpired token without consuming it.
func (l *Ledger) Peek(ctx context.Context, typ domain.TokenType, value string) (domain.LedgerToken, error) {
	if value == "" {
		return domain.LedgerToken{}, ErrTokenNotFound
	}
	t, err := l.Store.Tokens().GetToken(ctx, typ, cryptox.FingerprintToken(value), l.Clock.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LedgerToken{}, ErrTokenNotFound
		}
		return domain.LedgerToken{}, fmt.Errorf("look up %s token: %w", typ, err)
	}
	return t, nil
}

// RotateRefresh consumes oldValue and issues its replacement in the same
// session, in one transaction. Rotation happens on every use. within, when
// set, runs in that transaction after the old token is consumed; its error
// rolls the rotation back.
func (l *Ledger) RotateRefresh(
	ctx context.Context,
	oldValue string,
	ttl time.Duration,
	meta domain.TokenMetadata,
	within func(tx store.Tx, old domain.LedgerToken) error,
) (string, domain.LedgerToken, error) {
	var (
		value string
		t     domain.LedgerToken
	)
	err := l.Store.WithTx(ctx, func(tx store.Tx) error {
		old, err := l.redeemIn(ctx, tx, domain.TokenRefresh, oldValue)
		if err != nil {
			return err
		}
		meta.SessionID = old.SessionID
		meta.AMR = old.AMR
		if meta.Device == "" {
			meta.Device = old.Device
		}
		if within != nil {
			if err := within(tx, old); err != nil {
				return err
			}
		}
		value, t, err = l.issueIn(ctx, tx, old.AccountID, domain.TokenRefresh, ttl, meta)
		return err
	})
	if err != nil {
		return "", domain.LedgerToken{}, err
	}
	return value, t, nil
}

// Revoke blacklists a presented token until expiresAt plus the grace window.
// Repeating it for the same token is a no-op.
func (l *Ledger) Revoke(ctx context.Context, value string, kind domain.TokenKind, accountID string, reason domain.RevocationReason, expiresAt time.Time) error {
	return l.revokeHash(ctx, cryptox.FingerprintToken(value), kind, accountID, reason, expiresAt)
}

func (l *Ledger) revokeHash(ctx context.Context, hash string, kind domain.TokenKind, accountID string, reason domain.RevocationReason, expiresAt time.Time) error {
	grace := l.Grace
	if grace <= 0 {
		grace = DefaultBlacklistGrace
	}
	err := l.Blacklist.Add(ctx, domain.BlacklistEntry{
		TokenHash: hash,
		Kind:      kind,
		AccountID: accountID,
		Reason:    reason,
		ExpiresAt: expiresAt.Add(grace),
		CreatedAt: l.Clock.now(),
	})
	if err != nil {
		return fmt.Errorf("blacklist %s token: %w", kind, err)
	}
	return nil
}

// IsBlacklisted is the keyed revocation lookup done on every request.
func (l *Ledger) IsBlacklisted(ctx context.Context, value string) (bool, error) {
	ok, err := l.Blacklist.Contains(ctx, cryptox.FingerprintToken(value))
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return ok, nil
}
