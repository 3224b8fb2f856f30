package domain

import "time"

// PasswordChangeReason records why a password hash was replaced.
type PasswordChangeReason string

const (
	PasswordReasonInitial    PasswordChangeReason = "initial"
	PasswordReasonUserChange PasswordChangeReason = "user_change"
	PasswordReasonReset      PasswordChangeReason = "reset"
	PasswordReasonAdminReset PasswordChangeReason = "admin_reset"
)

// PasswordHistoryDepth is how many previous hashes are kept and checked for reuse.
const PasswordHistoryDepth = 5

type PasswordHistoryEntry struct {
	ID           string
	AccountID    string
	PasswordHash string
	Reason       PasswordChangeReason
	ChangedBy    string // account id of the actor; equals AccountID for self service
	CreatedAt    time.Time
}
