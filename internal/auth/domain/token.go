package domain

import "time"

// TokenPair is what the login and refresh flows hand back: the short-lived
// access token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`
	SessionID    string        `json:"session_id"`
}

// TokenType partitions the ledger.
type TokenType string

const (
	TokenRefresh           TokenType = "refresh"
	TokenAccess            TokenType = "access"
	TokenEmailVerification TokenType = "email_verification"
	TokenPasswordReset     TokenType = "password_reset"
	TokenTwoFactorCode     TokenType = "two_factor_code"
	TokenLoginChallenge    TokenType = "login_challenge"
)

// OneTimeUse reports whether a successful redemption must consume the entry.
func (t TokenType) OneTimeUse() bool {
	return t != TokenAccess
}

// LedgerToken is a persisted token record. The plaintext value is never
// stored, only its SHA-256 fingerprint.
type LedgerToken struct {
	ID        string
	AccountID string
	TokenHash string
	Type      TokenType
	SessionID string // refresh/access only
	Device    string // user agent or client label
	IP        string
	AMR       []string // refresh/access only: how the session authenticated
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenMetadata is optional client context captured at issuance.
type TokenMetadata struct {
	SessionID string
	Device    string
	IP        string
	AMR       []string
}

// Session is the user-visible view of a live refresh token.
type Session struct {
	ID        string    `json:"id"`
	Device    string    `json:"device,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}
