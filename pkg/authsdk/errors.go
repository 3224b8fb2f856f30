package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/proptrust/pkg/httpx"
)

// Error codes returned in ErrorResponse.Error.
const (
	ErrorCodeInvalidCredentials      = "invalid_credentials"
	ErrorCodeAccountLocked           = "account_locked"
	ErrorCodeAccountSuspended        = "account_suspended"
	ErrorCodeAccountDeleted          = "account_deleted"
	ErrorCodeAccountNotActivated     = "account_not_activated"
	ErrorCodeInvalidTwoFactorCode    = "invalid_two_factor_code"
	ErrorCodeTwoFactorLocked         = "two_factor_locked"
	ErrorCodeTwoFactorAlreadyEnabled = "two_factor_already_enabled"
	ErrorCodeTwoFactorNotEnabled     = "two_factor_not_enabled"
	ErrorCodeTokenExpired            = "token_expired"
	ErrorCodeTokenNotFound           = "token_not_found"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodePasswordReused          = "password_reused"
	ErrorCodePasswordTooWeak         = "password_too_weak"
	ErrorCodeEmailTaken              = "email_taken"
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeForbidden               = "forbidden"
	ErrorCodeInsufficientRole        = "insufficient_role"
	ErrorCodeNotFound                = "not_found"
	ErrorCodeRateLimited             = "rate_limit_exceeded"
	ErrorCodeServerError             = "server_error"
)

// APIError is a non-2xx response. Handlers write it; the client returns it.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// RetryAfter mirrors the Retry-After header of 423 and 429 responses.
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on Code so callers can write errors.Is(err, authsdk.ErrAccountLocked).
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WriteError writes e, including Retry-After when set.
func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.RetryAfter > 0 {
		secs := int((e.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

// Sentinels for errors.Is. Only Code is compared.
var (
	ErrInvalidCredentials   = &APIError{StatusCode: http.StatusUnauthorized, Code: ErrorCodeInvalidCredentials, Description: "invalid email or password"}
	ErrAccountLocked        = &APIError{StatusCode: http.StatusLocked, Code: ErrorCodeAccountLocked, Description: "account is temporarily locked"}
	ErrAccountSuspended     = &APIError{StatusCode: http.StatusForbidden, Code: ErrorCodeAccountSuspended, Description: "account is suspended"}
	ErrAccountNotActivated  = &APIError{StatusCode: http.StatusForbidden, Code: ErrorCodeAccountNotActivated, Description: "email address has not been verified"}
	ErrInvalidTwoFactorCode = &APIError{StatusCode: http.StatusBadRequest, Code: ErrorCodeInvalidTwoFactorCode, Description: "invalid verification code"}
	ErrTwoFactorLocked      = &APIError{StatusCode: http.StatusLocked, Code: ErrorCodeTwoFactorLocked, Description: "too many invalid codes"}
	ErrTokenNotFound        = &APIError{StatusCode: http.StatusBadRequest, Code: ErrorCodeTokenNotFound, Description: "token is invalid or has already been used"}
	ErrInvalidToken         = &APIError{StatusCode: http.StatusUnauthorized, Code: ErrorCodeInvalidToken, Description: "the access token is missing, invalid, expired or revoked"}
	ErrPasswordReused       = &APIError{StatusCode: http.StatusBadRequest, Code: ErrorCodePasswordReused, Description: "password was used recently"}
	ErrPasswordTooWeak      = &APIError{StatusCode: http.StatusBadRequest, Code: ErrorCodePasswordTooWeak, Description: "password does not meet the policy"}
	ErrEmailTaken           = &APIError{StatusCode: http.StatusConflict, Code: ErrorCodeEmailTaken, Description: "email address is already registered"}
	ErrInvalidRequest       = &APIError{StatusCode: http.StatusBadRequest, Code: ErrorCodeInvalidRequest, Description: "the request is malformed or missing required parameters"}
	ErrForbidden            = &APIError{StatusCode: http.StatusForbidden, Code: ErrorCodeForbidden, Description: "operation not permitted"}
	ErrInsufficientRole     = &APIError{StatusCode: http.StatusForbidden, Code: ErrorCodeInsufficientRole, Description: "insufficient role"}
	ErrNotFound             = &APIError{StatusCode: http.StatusNotFound, Code: ErrorCodeNotFound, Description: "not found"}
	ErrServerError          = &APIError{StatusCode: http.StatusInternalServerError, Code: ErrorCodeServerError, Description: "the server encountered an unexpected condition"}
)

// TwoFactorRequiredError is returned by Client.Login when the account has a
// second factor. Pass ChallengeToken to Client.CompleteLogin.
type TwoFactorRequiredError struct {
	ChallengeToken string
	Method         string
	ExpiresAt      time.Time
}

func (e *TwoFactorRequiredError) Error() string {
	return "two-factor verification required: method=" + e.Method
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Description = errResp.ErrorDescription
		return apiErr
	}

	apiErr.Code = ErrorCodeServerError
	apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return apiErr
}
