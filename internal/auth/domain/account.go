package domain

import (
	"fmt"
	"time"
)

// Role is the closed set of marketplace roles an account can hold.
type Role string

const (
	RoleInvestor            Role = "investor"
	RolePropertyOwner       Role = "property_owner"
	RoleLocalRepresentative Role = "local_representative"
	RoleAdmin               Role = "admin"
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RoleInvestor, RolePropertyOwner, RoleLocalRepresentative, RoleAdmin}

// ParseRole validates a role string against the closed enumeration.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("domain: unknown role %q", s)
}

// SelfRegistrable reports whether the role may be chosen at public signup.
func (r Role) SelfRegistrable() bool {
	return r != RoleAdmin
}

type AccountStatus string

const (
	StatusPendingActivation AccountStatus = "pending_activation"
	StatusActive            AccountStatus = "active"
	StatusSuspended         AccountStatus = "suspended"
	StatusPendingDeletion   AccountStatus = "pending_deletion"
	StatusDeleted           AccountStatus = "deleted"
)

// Account is the authentication view of a marketplace user. Role specific
// business fields live with the account directory, not here.
type Account struct {
	ID               string
	Email            string
	Phone            string // E.164, optional; required for SMS two-factor
	Role             Role
	PasswordHash     string // argon2id PHC string
	FailedLoginCount int
	LockedUntil      *time.Time
	TwoFactorEnabled bool
	EmailVerified    bool
	Status           AccountStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsLocked is true iff LockedUntil is set and still in the future.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// CanAuthenticate reports whether the status allows new sessions.
func (a *Account) CanAuthenticate() bool {
	return a.Status == StatusActive || a.Status == StatusPendingDeletion
}
