package service

import (
	"errors"
	"time"
)

// ErrorKind is the stable, machine-readable category of a service failure.
// The HTTP layer maps kinds to status codes; clients branch on them.
type ErrorKind string

const (
	KindInvalidCredentials      ErrorKind = "invalid_credentials"
	KindAccountLocked           ErrorKind = "account_locked"
	KindAccountSuspended        ErrorKind = "account_suspended"
	KindAccountDeleted          ErrorKind = "account_deleted"
	KindAccountNotActivated     ErrorKind = "account_not_activated"
	KindInvalidTwoFactorCode    ErrorKind = "invalid_two_factor_code"
	KindTwoFactorLocked         ErrorKind = "two_factor_locked"
	KindTwoFactorAlreadyEnabled ErrorKind = "two_factor_already_enabled"
	KindTwoFactorNotEnabled     ErrorKind = "two_factor_not_enabled"
	KindTokenExpired            ErrorKind = "token_expired"
	KindTokenNotFound           ErrorKind = "token_not_found"
	KindInvalidToken            ErrorKind = "invalid_token"
	KindPasswordReused          ErrorKind = "password_reused"
	KindPasswordTooWeak         ErrorKind = "password_too_weak"
	KindEmailTaken              ErrorKind = "email_taken"
	KindInvalidRequest          ErrorKind = "invalid_request"
	KindForbidden               ErrorKind = "forbidden"
	KindNotFound                ErrorKind = "not_found"
)

// Error is a policy or validation failure returned to the caller. Two
// errors match under errors.Is when their kinds are equal, so callers test
// against the sentinels below regardless of message or retry hint.
type Error struct {
	Kind    ErrorKind
	Message string

	// RetryAfter is set for lockouts: time until the lock lifts.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials      = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountLocked           = &Error{Kind: KindAccountLocked, Message: "account is temporarily locked"}
	ErrAccountSuspended        = &Error{Kind: KindAccountSuspended, Message: "account is suspended"}
	ErrAccountDeleted          = &Error{Kind: KindAccountDeleted, Message: "account has been deleted"}
	ErrAccountNotActivated     = &Error{Kind: KindAccountNotActivated, Message: "email address has not been verified"}
	ErrInvalidTwoFactorCode    = &Error{Kind: KindInvalidTwoFactorCode, Message: "invalid verification code"}
	ErrTwoFactorLocked         = &Error{Kind: KindTwoFactorLocked, Message: "too many invalid codes"}
	ErrTwoFactorAlreadyEnabled = &Error{Kind: KindTwoFactorAlreadyEnabled, Message: "two-factor authentication is already enabled"}
	ErrTwoFactorNotEnabled     = &Error{Kind: KindTwoFactorNotEnabled, Message: "two-factor authentication is not enabled"}
	ErrTokenExpired            = &Error{Kind: KindTokenExpired, Message: "token has expired"}
	ErrTokenNotFound           = &Error{Kind: KindTokenNotFound, Message: "token is invalid or has already been used"}
	ErrInvalidToken            = &Error{Kind: KindInvalidToken, Message: "token verification failed"}
	ErrPasswordReused          = &Error{Kind: KindPasswordReused, Message: "password was used recently"}
	ErrPasswordTooWeak         = &Error{Kind: KindPasswordTooWeak, Message: "password does not meet the policy"}
	ErrEmailTaken              = &Error{Kind: KindEmailTaken, Message: "email address is already registered"}
	ErrInvalidRequest          = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrForbidden               = &Error{Kind: KindForbidden, Message: "operation not permitted"}
	ErrNotFound                = &Error{Kind: KindNotFound, Message: "not found"}
)

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func lockedError(kind ErrorKind, msg string, until, now time.Time) *Error {
	retry := until.Sub(now)
	if retry < 0 {
		retry = 0
	}
	return &Error{Kind: kind, Message: msg, RetryAfter: retry}
}

// KindOf returns the kind of a service error, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
