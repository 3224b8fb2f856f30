package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/idx"
)

const minPasswordLength = 8

// Credentials owns the current password hash and the password history.
// It never invalidates sessions itself; callers compose that explicitly.
type Credentials struct {
	Store store.Store
	Clock Clock

	dummyOnce sync.Once
	dummyHash string
}

// VerifyPassword compares plaintext against the account's stored hash.
func (c *Credentials) VerifyPassword(a domain.Account, plaintext string) bool {
	return cryptox.VerifyPassword(plaintext, a.PasswordHash) == nil
}

// BurnVerification spends roughly one hash verification so unknown emails
// take as long to reject as wrong passwords.
func (c *Credentials) BurnVerification(plaintext string) {
	c.dummyOnce.Do(func() {
		h, err := cryptox.HashPassword("proptrust-timing-equaliser")
		if err == nil {
			c.dummyHash = h
		}
	})
	if c.dummyHash != "" {
		_ = cryptox.VerifyPassword(plaintext, c.dummyHash)
	}
}

// ValidatePolicy enforces the minimum password strength rules.
func ValidatePolicy(password, email string) error {
	if len(password) < minPasswordLength {
		return newError(KindPasswordTooWeak, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if email != "" && strings.EqualFold(strings.TrimSpace(password), strings.TrimSpace(email)) {
		return newError(KindPasswordTooWeak, "password must not equal the email address")
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return newError(KindPasswordTooWeak, "password needs an upper-case letter, a lower-case letter and a digit")
	}
	return nil
}

// CheckReuse fails with ErrPasswordReused when plaintext matches any of the
// account's last PasswordHistoryDepth hashes.
func (c *Credentials) CheckReuse(ctx context.Context, accountID, plaintext string) error {
	history, err := c.Store.PasswordHistory().ListRecent(ctx, accountID, domain.PasswordHistoryDepth)
	if err != nil {
		return fmt.Errorf("load password history: %w", err)
	}
	for _, h := range history {
		if cryptox.VerifyPassword(plaintext, h.PasswordHash) == nil {
			return ErrPasswordReused
		}
	}
	return nil
}

// SetPassword validates, hashes and stores a new password, appends a
// history entry and prunes history to PasswordHistoryDepth. When guard is
// non-nil it runs first inside the same transaction; its error aborts the
// change.
func (c *Credentials) SetPassword(
	ctx context.Context,
	a domain.Account,
	plaintext string,
	reason domain.PasswordChangeReason,
	changedBy string,
	guard func(tx store.Tx) error,
) error {
	if err := ValidatePolicy(plaintext, a.Email); err != nil {
		return err
	}
	if err := c.CheckReuse(ctx, a.ID, plaintext); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(plaintext)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if changedBy == "" {
		changedBy = a.ID
	}
	now := c.Clock.now()

	return c.Store.WithTx(ctx, func(tx store.Tx) error {
		if guard != nil {
			if err := guard(tx); err != nil {
				return err
			}
		}
		if err := tx.Accounts().UpdatePasswordHash(ctx, a.ID, hash, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("update password hash: %w", err)
		}
		if err := tx.PasswordHistory().AddEntry(ctx, domain.PasswordHistoryEntry{
			ID:           idx.New().String(),
			AccountID:    a.ID,
			PasswordHash: hash,
			Reason:       reason,
			ChangedBy:    changedBy,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append password history: %w", err)
		}
		if err := tx.PasswordHistory().Prune(ctx, a.ID, domain.PasswordHistoryDepth); err != nil {
			return fmt.Errorf("prune password history: %w", err)
		}
		return nil
	})
}
