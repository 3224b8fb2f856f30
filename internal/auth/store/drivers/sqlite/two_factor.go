package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
)

type twoFactorRepo struct {
	q dbtx
}

func (r *twoFactorRepo) GetConfig(ctx context.Context, accountID string) (domain.TwoFactorConfig, error) {
	var (
		c           domain.TwoFactorConfig
		method      string
		secret      sql.NullString
		tempSecret  sql.NullString
		lockedUntil sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT account_id, method, secret, temp_secret, is_enabled, failed_attempts,
		       locked_until, confirmed_step, created_at, updated_at
		FROM two_factor_configs
		WHERE account_id = ?`,
		accountID,
	).Scan(&c.AccountID, &method, &secret, &tempSecret, &c.IsEnabled, &c.FailedAttempts,
		&lockedUntil, &c.ConfirmedStep, &createdAt, &updatedAt)
	if err != nil {
		return domain.TwoFactorConfig{}, mapNotFound(err)
	}
	c.Method = domain.TwoFactorMethod(method)
	c.Secret = mapNullString(secret)
	c.TempSecret = mapNullString(tempSecret)
	c.LockedUntil = mapNullMillis(lockedUntil)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (r *twoFactorRepo) SaveConfig(ctx context.Context, c domain.TwoFactorConfig) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO two_factor_configs (
		    account_id, method, secret, temp_secret, is_enabled, failed_attempts,
		    locked_until, confirmed_step, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
		    method = excluded.method,
		    secret = excluded.secret,
		    temp_secret = excluded.temp_secret,
		    is_enabled = excluded.is_enabled,
		    failed_attempts = excluded.failed_attempts,
		    locked_until = excluded.locked_until,
		    confirmed_step = excluded.confirmed_step,
		    updated_at = excluded.updated_at`,
		c.AccountID, string(c.Method), mapStringNull(c.Secret), mapStringNull(c.TempSecret),
		c.IsEnabled, c.FailedAttempts, mapOptionalMillis(c.LockedUntil), c.ConfirmedStep,
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	return err
}

func (r *twoFactorRepo) RecordFailure(ctx context.Context, accountID string, threshold int, lockUntil, now time.Time) (store.LockoutState, error) {
	return recordFailure(ctx, r.q, "two_factor_configs", "failed_attempts", "account_id", accountID, threshold, lockUntil, now)
}

func (r *twoFactorRepo) ResetFailures(ctx context.Context, accountID string, now time.Time) error {
	return execOne(ctx, r.q, `
		UPDATE two_factor_configs
		SET failed_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE account_id = ?`,
		toMillis(now), accountID)
}

func (r *twoFactorRepo) DeleteConfig(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM two_factor_configs WHERE account_id = ?`, accountID)
	return err
}
