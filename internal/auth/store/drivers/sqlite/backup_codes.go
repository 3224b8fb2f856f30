package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, accountID string, codeHash string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO backup_codes (account_id, code_hash, created_at) VALUES (?, ?, ?)`,
		accountID, codeHash, toMillis(time.Now()))
	return err
}

// ConsumeBackupCode deletes in one statement, so two concurrent uses of the
// same code cannot both observe it.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, accountID string, codeHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE account_id = ? AND code_hash = ?`,
		accountID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE account_id = ?`, accountID)
	return err
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE account_id = ?`, accountID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
