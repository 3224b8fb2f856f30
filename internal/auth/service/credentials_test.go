package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

func TestValidatePolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Sunny-Harbour-9", true},
		{"too short", "Ab1", false},
		{"no digit", "NoDigitsHere", false},
		{"no upper", "lowercase123", false},
		{"no lower", "UPPERCASE123", false},
		{"equals email", "Owner1@Example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePolicy(tc.password, "owner1@example.com")
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrPasswordTooWeak)
		})
	}
}

func TestSetPassword_HistoryDepthFive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "history@example.com")

	// testPassword is generation 0; add five more.
	for i := 1; i <= 5; i++ {
		pw := fmt.Sprintf("Generation-%d-Pw", i)
		require.NoError(t, h.svc.Credentials.SetPassword(ctx, a, pw, domain.PasswordReasonUserChange, "", nil))
	}

	history, err := h.st.PasswordHistory().ListRecent(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, domain.PasswordHistoryDepth)

	for i := 1; i <= 5; i++ {
		err := h.svc.Credentials.SetPassword(ctx, a, fmt.Sprintf("Generation-%d-Pw", i), domain.PasswordReasonUserChange, "", nil)
		require.ErrorIs(t, err, ErrPasswordReused, "generation %d", i)
	}

	require.NoError(t, h.svc.Credentials.SetPassword(ctx, a, testPassword, domain.PasswordReasonUserChange, "", nil),
		"the sixth-oldest password is outside the window")

	updated := h.reload(t, a.ID)
	require.True(t, h.svc.Credentials.VerifyPassword(updated, testPassword))
}

func TestChangePassword_RevokesOtherSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "change@example.com")

	current := h.login(t, a.Email)
	other := h.login(t, a.Email)
	auth, err := h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)

	err = h.svc.Auth.ChangePassword(ctx, auth, "Not-The-Password-1", "Brand-New-Pass-2", testClient)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = h.svc.Auth.ChangePassword(ctx, auth, testPassword, testPassword, testClient)
	require.ErrorIs(t, err, ErrPasswordReused)

	require.NoError(t, h.svc.Auth.ChangePassword(ctx, auth, testPassword, "Brand-New-Pass-2", testClient))

	_, err = h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)
	_, err = h.svc.Auth.Authenticate(ctx, other.Tokens.AccessToken)
	require.Error(t, err)
	_, err = h.svc.Auth.Refresh(ctx, other.Tokens.RefreshToken, testClient)
	require.ErrorIs(t, err, ErrTokenNotFound)

	_, err = h.svc.Auth.Login(ctx, a.Email, "Brand-New-Pass-2", testClient)
	require.NoError(t, err)
	require.Equal(t, 1, h.notifier.alertCount(domain.ActionPasswordChanged))
}

func TestChangePassword_WrongCurrentPasswordCountsTowardLockout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "guess@example.com")
	res := h.login(t, a.Email)
	auth, err := h.svc.Auth.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)

	for i := 1; i < DefaultLockoutThreshold; i++ {
		err := h.svc.Auth.ChangePassword(ctx, auth, "Not-The-Password-1", "Brand-New-Pass-2", testClient)
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}
	require.Equal(t, DefaultLockoutThreshold-1, h.reload(t, a.ID).FailedLoginCount)

	err = h.svc.Auth.ChangePassword(ctx, auth, "Not-The-Password-1", "Brand-New-Pass-2", testClient)
	require.ErrorIs(t, err, ErrAccountLocked)
	err = h.svc.Auth.ChangePassword(ctx, auth, testPassword, "Brand-New-Pass-2", testClient)
	require.ErrorIs(t, err, ErrAccountLocked)

	events, err := h.st.AuditEvents().ListAccountEvents(ctx, a.ID, time.Time{}, 100)
	require.NoError(t, err)
	var failures int
	for _, e := range events {
		if e.Action == domain.ActionLoginFailed && e.Details["reason"] == "invalid_current_password" {
			failures++
		}
	}
	require.Equal(t, DefaultLockoutThreshold, failures)
	require.Contains(t, h.auditActions(t, a.ID), domain.ActionAccountLocked)
}

func TestForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "forgot@example.com")
	session := h.login(t, a.Email)

	require.NoError(t, h.svc.Auth.ForgotPassword(ctx, "nobody@example.com", testClient))
	require.Empty(t, h.notifier.codes, "unknown emails get no message and no error")

	require.NoError(t, h.svc.Auth.ForgotPassword(ctx, "FORGOT@example.com", testClient))
	token := h.notifier.lastCode(t, domain.PurposePasswordReset)

	t.Run("weak password keeps the token", func(t *testing.T) {
		err := h.svc.Auth.ResetPassword(ctx, token, "weak", testClient)
		require.ErrorIs(t, err, ErrPasswordTooWeak)
	})

	t.Run("reset succeeds once", func(t *testing.T) {
		require.NoError(t, h.svc.Auth.ResetPassword(ctx, token, "Reset-Password-7", testClient))
		err := h.svc.Auth.ResetPassword(ctx, token, "Reset-Password-8", testClient)
		require.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("all sessions revoked", func(t *testing.T) {
		_, err := h.svc.Auth.Refresh(ctx, session.Tokens.RefreshToken, testClient)
		require.ErrorIs(t, err, ErrTokenNotFound)
		_, err = h.svc.Auth.Authenticate(ctx, session.Tokens.AccessToken)
		require.Error(t, err)
	})

	_, err := h.svc.Auth.Login(ctx, a.Email, "Reset-Password-7", testClient)
	require.NoError(t, err)

	history, err := h.st.PasswordHistory().ListRecent(ctx, a.ID, 1)
	require.NoError(t, err)
	require.Equal(t, domain.PasswordReasonReset, history[0].Reason)
}
