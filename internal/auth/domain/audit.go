package domain

import "time"

// AuditAction is the closed set of security events recorded in the trail.
type AuditAction string

const (
	ActionRegistered             AuditAction = "account_registered"
	ActionEmailVerified          AuditAction = "email_verified"
	ActionLoginSuccess           AuditAction = "login_success"
	ActionLoginFailed            AuditAction = "login_failed"
	ActionAccountLocked          AuditAction = "account_locked"
	ActionAccountUnlocked        AuditAction = "account_unlocked"
	ActionLogout                 AuditAction = "logout"
	ActionTokenRefreshed         AuditAction = "token_refreshed"
	ActionPasswordChanged        AuditAction = "password_changed"
	ActionPasswordResetRequested AuditAction = "password_reset_requested"
	ActionPasswordReset          AuditAction = "password_reset"
	ActionTwoFactorSetupStarted  AuditAction = "two_factor_setup_started"
	ActionTwoFactorEnabled       AuditAction = "two_factor_enabled"
	ActionTwoFactorDisabled      AuditAction = "two_factor_disabled"
	ActionTwoFactorAutoDisabled  AuditAction = "two_factor_auto_disabled"
	ActionTwoFactorFailed        AuditAction = "two_factor_failed"
	ActionBackupCodeUsed         AuditAction = "backup_code_used"
	ActionBackupCodesRegenerated AuditAction = "backup_codes_regenerated"
	ActionSessionsRevoked        AuditAction = "sessions_revoked"
	ActionAccountSuspended       AuditAction = "account_suspended"
	ActionAccountReactivated     AuditAction = "account_reactivated"
	ActionSuspiciousActivity     AuditAction = "suspicious_activity"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AuditEvent is an append-only security record.
type AuditEvent struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"account_id"`
	Action      AuditAction       `json:"action"`
	Details     map[string]string `json:"details,omitempty"`
	Severity    Severity          `json:"severity"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Country     string            `json:"country,omitempty"`
	PerformedBy string            `json:"performed_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ClientInfo is the request origin captured for audit and session metadata.
type ClientInfo struct {
	IP        string
	UserAgent string
	Country   string // from an edge geo header when present
}
