package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/proptrust/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits/rolls back; outer DB stays open

// Ping is a no-op for transactions, the connection is already held.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Accounts() store.Accounts               { return &accountsRepo{q: t.tx} }
func (t *txStore) PasswordHistory() store.PasswordHistory { return &passwordHistoryRepo{q: t.tx} }
func (t *txStore) Tokens() store.Tokens                   { return &tokensRepo{q: t.tx} }
func (t *txStore) TwoFactor() store.TwoFactor             { return &twoFactorRepo{q: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes         { return &backupCodesRepo{q: t.tx} }
func (t *txStore) AuditEvents() store.AuditEvents         { return &auditEventsRepo{q: t.tx} }
func (t *txStore) SigningKeys() store.SigningKeys         { return &signingKeysRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx is opened
