package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

type auditEventsRepo struct {
	q dbtx
}

func (r *auditEventsRepo) AppendEvent(ctx context.Context, e domain.AuditEvent) error {
	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_events (
		    id, account_id, action, details, severity, ip, user_agent, country, performed_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, string(e.Action), details, string(e.Severity),
		mapStringNull(e.IP), mapStringNull(e.UserAgent), mapStringNull(e.Country),
		mapStringNull(e.PerformedBy), toMillis(e.CreatedAt),
	)
	return err
}

func (r *auditEventsRepo) ListAccountEvents(ctx context.Context, accountID string, since time.Time, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, action, details, severity, ip, user_agent, country, performed_by, created_at
		FROM audit_events
		WHERE account_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		accountID, toMillis(since), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var (
			e                            domain.AuditEvent
			action, severity             string
			details, ip, ua, country, by sql.NullString
			createdAt                    int64
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &action, &details, &severity, &ip, &ua, &country, &by, &createdAt); err != nil {
			return nil, err
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, err
			}
		}
		e.Action = domain.AuditAction(action)
		e.Severity = domain.Severity(severity)
		e.IP = mapNullString(ip)
		e.UserAgent = mapNullString(ua)
		e.Country = mapNullString(country)
		e.PerformedBy = mapNullString(by)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
