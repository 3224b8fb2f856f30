package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
)

// Blacklist is the sqlite-backed revocation list, used when no Redis URL is
// configured. It shares the Store's connection.
type Blacklist struct {
	db  dbtx
	now func() time.Time
}

var _ store.Blacklist = (*Blacklist)(nil)

func NewBlacklist(s *Store) *Blacklist {
	return &Blacklist{db: s.db, now: time.Now}
}

func (b *Blacklist) Add(ctx context.Context, e domain.BlacklistEntry) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (token_hash, kind, account_id, reason, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (token_hash) DO NOTHING`,
		e.TokenHash, string(e.Kind), e.AccountID, string(e.Reason),
		toMillis(e.ExpiresAt), toMillis(e.CreatedAt),
	)
	return err
}

func (b *Blacklist) Contains(ctx context.Context, tokenHash string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM token_blacklist WHERE token_hash = ? AND expires_at > ?`,
		tokenHash, toMillis(b.now()),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Blacklist) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (b *Blacklist) Ping(ctx context.Context) error {
	var one int
	return b.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}
