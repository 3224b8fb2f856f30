package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

type passwordHistoryRepo struct {
	q dbtx
}

func (r *passwordHistoryRepo) AddEntry(ctx context.Context, e domain.PasswordHistoryEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO password_history (id, account_id, password_hash, reason, changed_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, e.PasswordHash, string(e.Reason), mapStringNull(e.ChangedBy), toMillis(e.CreatedAt),
	)
	return err
}

func (r *passwordHistoryRepo) ListRecent(ctx context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, password_hash, reason, changed_by, created_at
		FROM password_history
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PasswordHistoryEntry
	for rows.Next() {
		var (
			e         domain.PasswordHistoryEntry
			reason    string
			changedBy sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.PasswordHash, &reason, &changedBy, &createdAt); err != nil {
			return nil, err
		}
		e.Reason = domain.PasswordChangeReason(reason)
		e.ChangedBy = mapNullString(changedBy)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *passwordHistoryRepo) Prune(ctx context.Context, accountID string, keep int) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM password_history
		WHERE account_id = ?1
		  AND id NOT IN (
		    SELECT id FROM password_history
		    WHERE account_id = ?1
		    ORDER BY created_at DESC, id DESC
		    LIMIT ?2
		  )`,
		accountID, keep,
	)
	return err
}
