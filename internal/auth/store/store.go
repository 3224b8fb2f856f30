package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so a Tx-scoped store cannot open a nested transaction.
type Store interface {
	Accounts() Accounts
	PasswordHistory() PasswordHistory
	Tokens() Tokens
	TwoFactor() TwoFactor
	BackupCodes() BackupCodes
	AuditEvents() AuditEvents
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Never touch the
	// outer Store from inside fn.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// LockoutState is the result of an atomic failed-login increment.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

type Accounts interface {
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByEmail matches case-insensitively.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	// CreateAccount returns ErrAlreadyExists when the email is taken.
	CreateAccount(ctx context.Context, a domain.Account) error

	UpdatePasswordHash(ctx context.Context, accountID, hash string, now time.Time) error
	UpdateStatus(ctx context.Context, accountID string, status domain.AccountStatus, now time.Time) error

	// MarkEmailVerified sets email_verified and promotes pending_activation to active.
	MarkEmailVerified(ctx context.Context, accountID string, now time.Time) error

	SetTwoFactorEnabled(ctx context.Context, accountID string, enabled bool, now time.Time) error

	// RecordLoginFailure increments failed_login_count in a single statement.
	// An expired lock restarts the count at 1. Crossing threshold sets
	// locked_until to lockUntil.
	RecordLoginFailure(ctx context.Context, accountID string, threshold int, lockUntil, now time.Time) (LockoutState, error)

	// ResetLoginFailures zeroes the counter and clears locked_until.
	ResetLoginFailures(ctx context.Context, accountID string, now time.Time) error
}

type PasswordHistory interface {
	AddEntry(ctx context.Context, e domain.PasswordHistoryEntry) error

	// ListRecent returns up to limit entries, newest first.
	ListRecent(ctx context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error)

	// Prune keeps only the newest keep entries for the account.
	Prune(ctx context.Context, accountID string, keep int) error
}

// Tokens is the token ledger. Consume* methods are a single DELETE ...
// RETURNING statement so concurrent redemptions cannot both succeed.
type Tokens interface {
	CreateToken(ctx context.Context, t domain.LedgerToken) error

	// ConsumeToken atomically deletes and returns an unexpired token by type + hash.
	ConsumeToken(ctx context.Context, typ domain.TokenType, hash string, now time.Time) (domain.LedgerToken, error)

	// ConsumeAccountToken is ConsumeToken scoped to one account, for short
	// numeric codes whose hashes are not globally unique.
	ConsumeAccountToken(ctx context.Context, accountID string, typ domain.TokenType, hash string, now time.Time) (domain.LedgerToken, error)

	// GetToken returns an unexpired token without consuming it.
	GetToken(ctx context.Context, typ domain.TokenType, hash string, now time.Time) (domain.LedgerToken, error)

	// ListAccountTokens returns unexpired tokens of a type, newest first.
	ListAccountTokens(ctx context.Context, accountID string, typ domain.TokenType, now time.Time) ([]domain.LedgerToken, error)

	// DeleteAccountTokens removes every token of a type for the account.
	DeleteAccountTokens(ctx context.Context, accountID string, typ domain.TokenType) error

	// DeleteSessionTokens removes all ledger rows of one session and returns them.
	DeleteSessionTokens(ctx context.Context, accountID, sessionID string) ([]domain.LedgerToken, error)

	// DeleteAccountSessionsExcept removes refresh and access rows for the
	// account except those belonging to exceptSessionID (may be empty), and
	// returns the removed rows.
	DeleteAccountSessionsExcept(ctx context.Context, accountID, exceptSessionID string) ([]domain.LedgerToken, error)

	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type TwoFactor interface {
	GetConfig(ctx context.Context, accountID string) (domain.TwoFactorConfig, error)

	// SaveConfig inserts or fully replaces the account's config.
	SaveConfig(ctx context.Context, c domain.TwoFactorConfig) error

	// RecordFailure atomically increments failed_attempts, locking at threshold.
	RecordFailure(ctx context.Context, accountID string, threshold int, lockUntil, now time.Time) (LockoutState, error)

	ResetFailures(ctx context.Context, accountID string, now time.Time) error

	DeleteConfig(ctx context.Context, accountID string) error
}

type BackupCodes interface {
	CreateBackupCode(ctx context.Context, accountID, codeHash string) error

	// ConsumeBackupCode deletes the code and reports whether it existed.
	ConsumeBackupCode(ctx context.Context, accountID, codeHash string) (bool, error)

	DeleteAllBackupCodes(ctx context.Context, accountID string) error

	CountBackupCodes(ctx context.Context, accountID string) (int, error)
}

type AuditEvents interface {
	AppendEvent(ctx context.Context, e domain.AuditEvent) error

	// ListAccountEvents returns events at or after since, newest first.
	ListAccountEvents(ctx context.Context, accountID string, since time.Time, limit int) ([]domain.AuditEvent, error)
}

type SigningKeys interface {
	CreateSigningKey(ctx context.Context, k domain.SigningKey) error

	// ListSigningKeys returns keys that have not expired at now, oldest first.
	ListSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}

// Blacklist is the revocation store for bearer tokens. It is deliberately not
// part of Store: it may live in Redis while everything else lives in sqlite.
type Blacklist interface {
	// Add is idempotent on the token hash.
	Add(ctx context.Context, e domain.BlacklistEntry) error

	// Contains is a keyed lookup; expired entries are never reported.
	Contains(ctx context.Context, tokenHash string) (bool, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	Ping(ctx context.Context) error
}
