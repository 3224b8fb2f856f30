package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

type tokensRepo struct {
	q dbtx
}

const tokenColumns = `id, account_id, token_hash, type, session_id, device, ip, amr, expires_at, created_at`

func scanToken(row interface{ Scan(...any) error }) (domain.LedgerToken, error) {
	var (
		t         domain.LedgerToken
		typ       string
		sessionID sql.NullString
		device    sql.NullString
		ip        sql.NullString
		amr       sql.NullString
		expiresAt int64
		createdAt int64
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.TokenHash, &typ, &sessionID, &device, &ip, &amr, &expiresAt, &createdAt); err != nil {
		return domain.LedgerToken{}, mapNotFound(err)
	}
	t.Type = domain.TokenType(typ)
	t.SessionID = mapNullString(sessionID)
	t.Device = mapNullString(device)
	t.IP = mapNullString(ip)
	t.AMR = strings.Fields(mapNullString(amr))
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func scanTokens(rows *sql.Rows) ([]domain.LedgerToken, error) {
	defer rows.Close()
	var out []domain.LedgerToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.LedgerToken) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO ledger_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.TokenHash, string(t.Type),
		mapStringNull(t.SessionID), mapStringNull(t.Device), mapStringNull(t.IP),
		mapStringNull(strings.Join(t.AMR, " ")),
		toMillis(t.ExpiresAt), toMillis(t.CreatedAt),
	)
	return err
}

func (r *tokensRepo) ConsumeToken(ctx context.Context, typ domain.TokenType, hash string, now time.Time) (domain.LedgerToken, error) {
	row := r.q.QueryRowContext(ctx, `
		DELETE FROM ledger_tokens
		WHERE id = (
		    SELECT id FROM ledger_tokens
		    WHERE type = ? AND token_hash = ? AND expires_at > ?
		    LIMIT 1
		)
		RETURNING `+tokenColumns,
		string(typ), hash, toMillis(now),
	)
	return scanToken(row)
}

func (r *tokensRepo) ConsumeAccountToken(ctx context.Context, accountID string, typ domain.TokenType, hash string, now time.Time) (domain.LedgerToken, error) {
	row := r.q.QueryRowContext(ctx, `
		DELETE FROM ledger_tokens
		WHERE id = (
		    SELECT id FROM ledger_tokens
		    WHERE account_id = ? AND type = ? AND token_hash = ? AND expires_at > ?
		    LIMIT 1
		)
		RETURNING `+tokenColumns,
		accountID, string(typ), hash, toMillis(now),
	)
	return scanToken(row)
}

func (r *tokensRepo) GetToken(ctx context.Context, typ domain.TokenType, hash string, now time.Time) (domain.LedgerToken, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM ledger_tokens
		WHERE type = ? AND token_hash = ? AND expires_at > ?
		LIMIT 1`,
		string(typ), hash, toMillis(now),
	)
	return scanToken(row)
}

func (r *tokensRepo) ListAccountTokens(ctx context.Context, accountID string, typ domain.TokenType, now time.Time) ([]domain.LedgerToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM ledger_tokens
		WHERE account_id = ? AND type = ? AND expires_at > ?
		ORDER BY created_at DESC`,
		accountID, string(typ), toMillis(now),
	)
	if err != nil {
		return nil, err
	}
	return scanTokens(rows)
}

func (r *tokensRepo) DeleteAccountTokens(ctx context.Context, accountID string, typ domain.TokenType) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM ledger_tokens WHERE account_id = ? AND type = ?`,
		accountID, string(typ))
	return err
}

func (r *tokensRepo) DeleteSessionTokens(ctx context.Context, accountID, sessionID string) ([]domain.LedgerToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		DELETE FROM ledger_tokens
		WHERE account_id = ? AND session_id = ?
		RETURNING `+tokenColumns,
		accountID, sessionID,
	)
	if err != nil {
		return nil, err
	}
	return scanTokens(rows)
}

func (r *tokensRepo) DeleteAccountSessionsExcept(ctx context.Context, accountID, exceptSessionID string) ([]domain.LedgerToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		DELETE FROM ledger_tokens
		WHERE account_id = ?1
		  AND type IN (?2, ?3)
		  AND (?4 = '' OR session_id IS NULL OR session_id <> ?4)
		RETURNING `+tokenColumns,
		accountID, string(domain.TokenRefresh), string(domain.TokenAccess), exceptSessionID,
	)
	if err != nil {
		return nil, err
	}
	return scanTokens(rows)
}

func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM ledger_tokens WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
