package domain

import "time"

// CodePurpose selects the message template used to deliver a one-time value.
type CodePurpose string

const (
	PurposeTwoFactor         CodePurpose = "two_factor"
	PurposeEmailVerification CodePurpose = "email_verification"
	PurposePasswordReset     CodePurpose = "password_reset"
)

// OneTimeCode is a single out-of-band delivery of a code or link token.
type OneTimeCode struct {
	Destination string          `json:"destination"`
	Code        string          `json:"code"`
	Channel     DeliveryChannel `json:"channel"`
	Purpose     CodePurpose     `json:"purpose"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// SecurityAlert tells an account holder about a security-relevant change.
type SecurityAlert struct {
	AccountID string            `json:"account_id"`
	Action    AuditAction       `json:"action"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	IP        string            `json:"ip,omitempty"`
	At        time.Time         `json:"at"`
}

// AdminNotice is raised to operators when the core degrades a control.
type AdminNotice struct {
	AccountID string            `json:"account_id"`
	Action    AuditAction       `json:"action"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	At        time.Time         `json:"at"`
}
