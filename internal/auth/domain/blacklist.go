package domain

import "time"

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

type RevocationReason string

const (
	ReasonLogout             RevocationReason = "logout"
	ReasonPasswordChanged    RevocationReason = "password_changed"
	ReasonSuspiciousActivity RevocationReason = "suspicious_activity"
	ReasonAdminAction        RevocationReason = "admin_action"
	ReasonAllSessionsRevoked RevocationReason = "all_sessions_revoked"
)

// BlacklistEntry is an explicit revocation of a bearer token, keyed by the
// token fingerprint. ExpiresAt mirrors the token expiry plus a grace window.
type BlacklistEntry struct {
	TokenHash string
	Kind      TokenKind
	AccountID string
	Reason    RevocationReason
	ExpiresAt time.Time
	CreatedAt time.Time
}
