package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
)

type accountsRepo struct {
	q dbtx
}

const accountColumns = `id, email, phone, role, password_hash, failed_login_count, locked_until,
	two_factor_enabled, email_verified, status, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var (
		a           domain.Account
		phone       sql.NullString
		role        string
		status      string
		lockedUntil sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&a.ID, &a.Email, &phone, &role, &a.PasswordHash, &a.FailedLoginCount,
		&lockedUntil, &a.TwoFactorEnabled, &a.EmailVerified, &status, &createdAt, &updatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.Phone = mapNullString(phone)
	a.Role = domain.Role(role)
	a.Status = domain.AccountStatus(status)
	a.LockedUntil = mapNullMillis(lockedUntil)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ? COLLATE NOCASE`,
		strings.TrimSpace(email))
	return scanAccount(row)
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, mapStringNull(a.Phone), string(a.Role), a.PasswordHash, a.FailedLoginCount,
		mapOptionalMillis(a.LockedUntil), a.TwoFactorEnabled, a.EmailVerified, string(a.Status),
		toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, accountID, hash string, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toMillis(now), accountID)
}

func (r *accountsRepo) UpdateStatus(ctx context.Context, accountID string, status domain.AccountStatus, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(now), accountID)
}

func (r *accountsRepo) MarkEmailVerified(ctx context.Context, accountID string, now time.Time) error {
	return r.execOne(ctx, `
		UPDATE accounts
		SET email_verified = 1,
		    status = CASE WHEN status = 'pending_activation' THEN 'active' ELSE status END,
		    updated_at = ?
		WHERE id = ?`,
		toMillis(now), accountID)
}

func (r *accountsRepo) SetTwoFactorEnabled(ctx context.Context, accountID string, enabled bool, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET two_factor_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, toMillis(now), accountID)
}

func (r *accountsRepo) RecordLoginFailure(ctx context.Context, accountID string, threshold int, lockUntil, now time.Time) (store.LockoutState, error) {
	return recordFailure(ctx, r.q, "accounts", "failed_login_count", "id", accountID, threshold, lockUntil, now)
}

func (r *accountsRepo) ResetLoginFailures(ctx context.Context, accountID string, now time.Time) error {
	return r.execOne(ctx,
		`UPDATE accounts SET failed_login_count = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		toMillis(now), accountID)
}

func (r *accountsRepo) execOne(ctx context.Context, query string, args ...any) error {
	return execOne(ctx, r.q, query, args...)
}

func execOne(ctx context.Context, q dbtx, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// recordFailure is the shared counter used by account lockout and the
// two-factor attempt limit. An expired lock restarts the count at 1; an
// active lock is left untouched so repeated attempts cannot extend it.
func recordFailure(ctx context.Context, q dbtx, table, counter, keyCol, key string, threshold int, lockUntil, now time.Time) (store.LockoutState, error) {
	query := `
		UPDATE ` + table + `
		SET ` + counter + ` = CASE
		        WHEN locked_until IS NOT NULL AND locked_until <= ?1 THEN 1
		        ELSE ` + counter + ` + 1
		    END,
		    locked_until = CASE
		        WHEN locked_until IS NOT NULL AND locked_until > ?1 THEN locked_until
		        WHEN locked_until IS NOT NULL AND locked_until <= ?1 THEN
		            CASE WHEN 1 >= ?2 THEN ?3 ELSE NULL END
		        WHEN ` + counter + ` + 1 >= ?2 THEN ?3
		        ELSE NULL
		    END,
		    updated_at = ?1
		WHERE ` + keyCol + ` = ?4
		RETURNING ` + counter + `, locked_until`

	var (
		count  int
		locked sql.NullInt64
	)
	err := q.QueryRowContext(ctx, query, toMillis(now), threshold, toMillis(lockUntil), key).Scan(&count, &locked)
	if err != nil {
		return store.LockoutState{}, mapNotFound(err)
	}
	return store.LockoutState{FailedCount: count, LockedUntil: mapNullMillis(locked)}, nil
}
