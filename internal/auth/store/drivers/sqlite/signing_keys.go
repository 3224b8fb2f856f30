package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
)

type signingKeysRepo struct {
	q dbtx
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, k domain.SigningKey) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO signing_keys (
		    id, kid, algorithm, private_key_encrypted, created_at, retires_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Kid, k.Algorithm, k.PrivateKeyEncrypted,
		toMillis(k.CreatedAt), toMillis(k.RetiresAt), toMillis(k.ExpiresAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, kid, algorithm, private_key_encrypted, created_at, retires_at, expires_at
		FROM signing_keys
		WHERE expires_at > ?
		ORDER BY created_at, id`,
		toMillis(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SigningKey
	for rows.Next() {
		var (
			k                               domain.SigningKey
			createdAt, retiresAt, expiresAt int64
		)
		if err := rows.Scan(&k.ID, &k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &createdAt, &retiresAt, &expiresAt); err != nil {
			return nil, err
		}
		k.CreatedAt = fromMillis(createdAt)
		k.RetiresAt = fromMillis(retiresAt)
		k.ExpiresAt = fromMillis(expiresAt)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM signing_keys WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
