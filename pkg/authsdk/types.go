package authsdk

import (
	"time"

	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the stable machine-readable code (e.g. "account_locked")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse carries a bearer access token and its rotating refresh token.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token. It is single use: every
	// refresh returns a new one.
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// SessionID identifies the login session the tokens belong to
	SessionID string `json:"session_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ============================================================================
// Account Types
// ============================================================================

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`

	// Role is one of investor, property_owner, local_representative
	Role string `json:"role"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	EmailVerified    bool      `json:"email_verified"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProfileResponse is the role-specific profile embedded in login and /v1/me.
type ProfileResponse struct {
	Role   string         `json:"role"`
	Limits map[string]int `json:"limits,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

type MeResponse struct {
	Account AccountResponse `json:"account"`
	Profile ProfileResponse `json:"profile"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// ============================================================================
// Login Types
// ============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by both login steps. When TwoFactorRequired is
// set only the challenge fields are present; otherwise Tokens, Account and
// Profile are.
type LoginResponse struct {
	TwoFactorRequired  bool       `json:"two_factor_required"`
	ChallengeToken     string     `json:"challenge_token,omitempty"`
	Method             string     `json:"method,omitempty"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty"`

	Tokens  *TokenResponse   `json:"tokens,omitempty"`
	Account *AccountResponse `json:"account,omitempty"`
	Profile *ProfileResponse `json:"profile,omitempty"`
}

type LoginTwoFactorRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

type LogoutAllRequest struct {
	// KeepCurrent keeps the session that made the request signed in
	KeepCurrent bool `json:"keep_current"`
}

type RevokedResponse struct {
	Revoked int `json:"revoked"`
}

// ============================================================================
// Password Types
// ============================================================================

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ============================================================================
// Two-Factor Types
// ============================================================================

type TwoFactorSetupRequest struct {
	// Method is one of email, sms, authenticator
	Method string `json:"method"`
}

// TwoFactorSetupResponse carries the enrolment material. Secret and
// ProvisioningURL are set for authenticator apps; Destination (masked) for
// email and SMS.
type TwoFactorSetupResponse struct {
	Method          string `json:"method"`
	Secret          string `json:"secret,omitempty"`
	ProvisioningURL string `json:"provisioning_url,omitempty"`
	Destination     string `json:"destination,omitempty"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// TwoFactorCodeSentResponse reports where a fresh code was delivered.
type TwoFactorCodeSentResponse struct {
	Method      string `json:"method"`
	Destination string `json:"destination"`
}

type TwoFactorDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// BackupCodesResponse lists freshly generated backup codes. They are shown
// once and cannot be retrieved again.
type BackupCodesResponse struct {
	Codes []string `json:"codes"`
}

type BackupCodesRemainingResponse struct {
	Remaining int `json:"remaining"`
}

// ============================================================================
// Session & Audit Types
// ============================================================================

type SessionResponse struct {
	ID        string    `json:"id"`
	Device    string    `json:"device,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

type SessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type AuditEventResponse struct {
	ID          string            `json:"id"`
	Action      string            `json:"action"`
	Severity    string            `json:"severity"`
	Details     map[string]string `json:"details,omitempty"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Country     string            `json:"country,omitempty"`
	PerformedBy string            `json:"performed_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type AuditEventsResponse struct {
	Events []AuditEventResponse `json:"events"`
}

// ============================================================================
// Admin Types
// ============================================================================

type SuspendRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AdminResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ============================================================================
// Health Types
// ============================================================================

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database  string `json:"database"`
	Signer    string `json:"signer"`
	Blacklist string `json:"blacklist"`
}

// JWKSResponse is the public key set used to verify access tokens.
type JWKSResponse jwtx.JWKS
