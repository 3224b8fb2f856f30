package authsdk

import (
	"context"
	"net/http"
)

// BeginTwoFactorSetup starts enrolment. For email and SMS a code is sent to
// the returned (masked) destination; for authenticator apps the secret and
// provisioning URL are returned.
func (s *Session) BeginTwoFactorSetup(ctx context.Context, method string) (*TwoFactorSetupResponse, error) {
	var out TwoFactorSetupResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/setup", TwoFactorSetupRequest{Method: method}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnableTwoFactor confirms enrolment with a code and returns the backup
// codes. Every other session of the account is revoked.
func (s *Session) EnableTwoFactor(ctx context.Context, code string) ([]string, error) {
	var out BackupCodesResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/enable", TwoFactorCodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

// SendTwoFactorCode asks for a fresh code on an email or SMS factor, for use
// with DisableTwoFactor or RegenerateBackupCodes.
func (s *Session) SendTwoFactorCode(ctx context.Context) (*TwoFactorCodeSentResponse, error) {
	var out TwoFactorCodeSentResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/code", nil, &out, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) DisableTwoFactor(ctx context.Context, password, code string) error {
	req := TwoFactorDisableRequest{Password: password, Code: code}
	return s.call(ctx, http.MethodPost, "/v1/2fa/disable", req, nil, http.StatusNoContent)
}

// RegenerateBackupCodes replaces all backup codes. code must be a current
// second-factor code.
func (s *Session) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	var out BackupCodesResponse
	if err := s.call(ctx, http.MethodPost, "/v1/2fa/backup-codes", TwoFactorCodeRequest{Code: code}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

func (s *Session) BackupCodesRemaining(ctx context.Context) (int, error) {
	var out BackupCodesRemainingResponse
	if err := s.call(ctx, http.MethodGet, "/v1/2fa/backup-codes", nil, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Remaining, nil
}
