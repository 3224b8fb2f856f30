package service

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
)

func totpAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totpOpts())
	require.NoError(t, err)
	return code
}

// enrolAuthenticator enables authenticator two-factor and returns the
// secret and backup codes.
func enrolAuthenticator(t *testing.T, h *harness, a domain.Account) (string, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodAuthenticator, testClient)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURL, "otpauth://totp/")

	codes, err := h.svc.TwoFactor.ConfirmSetup(ctx, a, totpAt(t, setup.Secret, h.clock.Now()), "", testClient)
	require.NoError(t, err)

	// The enrolment step is spent; later codes come from the next one.
	h.clock.Advance(totpPeriod * time.Second)
	return setup.Secret, codes
}

func TestConfirmSetup_TOTPSkewWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "skew@example.com")

	setup, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodAuthenticator, testClient)
	require.NoError(t, err)

	now := h.clock.Now()
	for _, steps := range []int{3, -3} {
		code := totpAt(t, setup.Secret, now.Add(time.Duration(steps)*30*time.Second))
		if code == totpAt(t, setup.Secret, now) {
			continue
		}
		_, err := h.svc.TwoFactor.ConfirmSetup(ctx, a, code, "", testClient)
		require.ErrorIs(t, err, ErrInvalidTwoFactorCode, "%d steps away", steps)
	}

	codes, err := h.svc.TwoFactor.ConfirmSetup(ctx, a, totpAt(t, setup.Secret, now.Add(60*time.Second)), "", testClient)
	require.NoError(t, err)
	require.Len(t, codes, BackupCodeCount)

	cfg, err := h.svc.TwoFactor.Config(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, cfg.IsEnabled)
	require.Equal(t, setup.Secret, cfg.Secret)
	require.Empty(t, cfg.TempSecret)
	require.Zero(t, cfg.FailedAttempts)
	require.True(t, h.reload(t, a.ID).TwoFactorEnabled)

	n, err := h.svc.TwoFactor.BackupCodesRemaining(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, BackupCodeCount, n)
}

func TestConfirmSetup_RevokesOtherSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "enable@example.com")

	current := h.login(t, a.Email)
	other := h.login(t, a.Email)
	auth, err := h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)

	setup, err := h.svc.Auth.BeginTwoFactorSetup(ctx, auth, domain.MethodAuthenticator, testClient)
	require.NoError(t, err)
	_, err = h.svc.Auth.EnableTwoFactor(ctx, auth, totpAt(t, setup.Secret, h.clock.Now()), testClient)
	require.NoError(t, err)

	_, err = h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)
	_, err = h.svc.Auth.Authenticate(ctx, other.Tokens.AccessToken)
	require.Error(t, err)
}

func TestLogin_AuthenticatorTwoFactor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "totp@example.com")
	secret, _ := enrolAuthenticator(t, h, h.reload(t, a.ID))

	res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	require.True(t, res.TwoFactorRequired)
	require.Nil(t, res.Tokens)
	require.Equal(t, domain.MethodAuthenticator, res.TwoFactorMethod)
	require.NotEmpty(t, res.ChallengeToken)

	_, err = h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, "000000x", testClient)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	code := totpAt(t, secret, h.clock.Now())
	done, err := h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, code, testClient)
	require.NoError(t, err)
	require.NotNil(t, done.Tokens)
	require.NotNil(t, done.Profile)
	require.Equal(t, domain.RoleInvestor, done.Profile.Role)

	auth, err := h.svc.Auth.Authenticate(ctx, done.Tokens.AccessToken)
	require.NoError(t, err)
	require.Contains(t, auth.AMR, jwtx.AMRMFA)

	t.Run("challenge is single use", func(t *testing.T) {
		_, err := h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, code, testClient)
		require.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("same TOTP accepted again on a new challenge", func(t *testing.T) {
		again, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
		require.NoError(t, err)
		_, err = h.svc.Auth.VerifyLoginCode(ctx, again.ChallengeToken, code, testClient)
		require.NoError(t, err)
	})
}

func TestVerifyCode_BackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "backup@example.com")
	_, codes := enrolAuthenticator(t, h, h.reload(t, a.ID))
	a = h.reload(t, a.ID)

	lower := []byte(codes[0])
	for i, c := range lower {
		if c >= 'A' && c <= 'Z' {
			lower[i] = c + ('a' - 'A')
		}
	}

	require.NoError(t, h.svc.TwoFactor.VerifyCode(ctx, a, string(lower), testClient))
	require.ErrorIs(t, h.svc.TwoFactor.VerifyCode(ctx, a, codes[0], testClient), ErrInvalidTwoFactorCode)

	n, err := h.svc.TwoFactor.BackupCodesRemaining(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, BackupCodeCount-1, n)
	require.Contains(t, h.auditActions(t, a.ID), domain.ActionBackupCodeUsed)
}

func TestVerifyCode_LocksAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "2falock@example.com")
	secret, _ := enrolAuthenticator(t, h, h.reload(t, a.ID))
	a = h.reload(t, a.ID)

	for i := 1; i < DefaultTwoFactorThreshold; i++ {
		require.ErrorIs(t, h.svc.TwoFactor.VerifyCode(ctx, a, "bad", testClient), ErrInvalidTwoFactorCode)
	}
	require.ErrorIs(t, h.svc.TwoFactor.VerifyCode(ctx, a, "bad", testClient), ErrTwoFactorLocked)
	require.ErrorIs(t, h.svc.TwoFactor.VerifyCode(ctx, a, totpAt(t, secret, h.clock.Now()), testClient), ErrTwoFactorLocked)

	h.clock.Advance(DefaultTwoFactorLockDuration + time.Second)
	require.NoError(t, h.svc.TwoFactor.VerifyCode(ctx, a, totpAt(t, secret, h.clock.Now()), testClient))

	cfg, err := h.svc.TwoFactor.Config(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, cfg.FailedAttempts)
}

func TestEmailTwoFactor_SetupAndLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "emailcode@example.com")

	setup, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodEmail, testClient)
	require.NoError(t, err)
	require.Equal(t, "e********@example.com", setup.Destination)

	_, err = h.svc.TwoFactor.ConfirmSetup(ctx, a, h.notifier.lastCode(t, domain.PurposeTwoFactor), "", testClient)
	require.NoError(t, err)

	res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	require.True(t, res.TwoFactorRequired)
	require.Equal(t, domain.MethodEmail, res.TwoFactorMethod)

	code := h.notifier.lastCode(t, domain.PurposeTwoFactor)
	done, err := h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, code, testClient)
	require.NoError(t, err)
	require.NotNil(t, done.Tokens)

	// The delivered code was consumed with the login.
	again, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	if next := h.notifier.lastCode(t, domain.PurposeTwoFactor); next != code {
		_, err = h.svc.Auth.VerifyLoginCode(ctx, again.ChallengeToken, code, testClient)
		require.ErrorIs(t, err, ErrInvalidTwoFactorCode)
	}
}

func TestLogin_DeliveryFailureDisablesTwoFactor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "smsdown@example.com")

	_, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodSMS, testClient)
	require.NoError(t, err)
	_, err = h.svc.TwoFactor.ConfirmSetup(ctx, a, h.notifier.lastCode(t, domain.PurposeTwoFactor), "", testClient)
	require.NoError(t, err)

	h.notifier.setFailure(errDeliveryDown)

	res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	require.False(t, res.TwoFactorRequired)
	require.NotNil(t, res.Tokens)

	require.False(t, h.reload(t, a.ID).TwoFactorEnabled)
	cfg, err := h.svc.TwoFactor.Config(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, cfg.IsEnabled)

	events, err := h.st.AuditEvents().ListAccountEvents(ctx, a.ID, time.Time{}, 100)
	require.NoError(t, err)
	var found bool
	for _, e := range events {
		if e.Action == domain.ActionTwoFactorAutoDisabled {
			found = true
			require.Equal(t, domain.SeverityHigh, e.Severity)
		}
	}
	require.True(t, found)

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	require.Len(t, h.notifier.notices, 1)
}

func TestSetup_DeliveryFailureOnlyLogs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "setupfail@example.com")
	h.notifier.setFailure(errDeliveryDown)

	_, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodEmail, testClient)
	require.NoError(t, err)
	require.False(t, h.reload(t, a.ID).TwoFactorEnabled)
}

func TestBeginSetup_Rules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "rules@example.com")

	a.Phone = ""
	_, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodSMS, testClient)
	require.ErrorIs(t, err, ErrInvalidRequest)

	enrolAuthenticator(t, h, h.reload(t, a.ID))
	_, err = h.svc.TwoFactor.BeginSetup(ctx, h.reload(t, a.ID), domain.MethodEmail, testClient)
	require.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
}

func TestDisableTwoFactor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "disable@example.com")
	secret, _ := enrolAuthenticator(t, h, h.reload(t, a.ID))

	res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	done, err := h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, totpAt(t, secret, h.clock.Now()), testClient)
	require.NoError(t, err)
	auth, err := h.svc.Auth.Authenticate(ctx, done.Tokens.AccessToken)
	require.NoError(t, err)

	err = h.svc.Auth.DisableTwoFactor(ctx, auth, "Wrong-Password-1", totpAt(t, secret, h.clock.Now()), testClient)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, h.svc.Auth.DisableTwoFactor(ctx, auth, testPassword, totpAt(t, secret, h.clock.Now()), testClient))
	require.False(t, h.reload(t, a.ID).TwoFactorEnabled)

	n, err := h.svc.TwoFactor.BackupCodesRemaining(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	plain := h.login(t, a.Email)
	require.NotNil(t, plain.Tokens)
}

func TestRegenerateBackupCodes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "regen@example.com")
	secret, old := enrolAuthenticator(t, h, h.reload(t, a.ID))
	a = h.reload(t, a.ID)

	_, err := h.svc.TwoFactor.RegenerateBackupCodes(ctx, a, "nope", testClient)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	fresh, err := h.svc.TwoFactor.RegenerateBackupCodes(ctx, a, totpAt(t, secret, h.clock.Now()), testClient)
	require.NoError(t, err)
	require.Len(t, fresh, BackupCodeCount)

	require.ErrorIs(t, h.svc.TwoFactor.VerifyCode(ctx, a, old[1], testClient), ErrInvalidTwoFactorCode)
	require.NoError(t, h.svc.TwoFactor.VerifyCode(ctx, a, fresh[1], testClient))
}

func TestLogin_EnrolmentCodeNotAcceptedAgain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "replay@example.com")

	setup, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodAuthenticator, testClient)
	require.NoError(t, err)
	enrolment := totpAt(t, setup.Secret, h.clock.Now())
	_, err = h.svc.TwoFactor.ConfirmSetup(ctx, a, enrolment, "", testClient)
	require.NoError(t, err)

	cfg, err := h.svc.TwoFactor.Config(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, h.clock.Now().Unix()/totpPeriod, cfg.ConfirmedStep)

	res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	require.True(t, res.TwoFactorRequired)

	_, err = h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, enrolment, testClient)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode)

	h.clock.Advance(totpPeriod * time.Second)
	_, err = h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, enrolment, testClient)
	require.ErrorIs(t, err, ErrInvalidTwoFactorCode, "an older step must stay rejected")

	done, err := h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, totpAt(t, setup.Secret, h.clock.Now()), testClient)
	require.NoError(t, err)
	require.NotNil(t, done.Tokens)
}

func TestConfirmSetup_RevocationReason(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "reason@example.com")
	h.login(t, a.Email)

	enrolAuthenticator(t, h, h.reload(t, a.ID))

	events, err := h.st.AuditEvents().ListAccountEvents(ctx, a.ID, time.Time{}, 100)
	require.NoError(t, err)
	var reasons []string
	for _, e := range events {
		if e.Action == domain.ActionSessionsRevoked {
			reasons = append(reasons, e.Details["reason"])
		}
	}
	require.Equal(t, []string{string(domain.ReasonAllSessionsRevoked)}, reasons)
}

func TestBeginSetup_KeepsFailureCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "restart@example.com")

	_, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodAuthenticator, testClient)
	require.NoError(t, err)
	for i := 1; i < DefaultTwoFactorThreshold; i++ {
		_, err := h.svc.TwoFactor.ConfirmSetup(ctx, a, "bad", "", testClient)
		require.ErrorIs(t, err, ErrInvalidTwoFactorCode)
	}

	// Restarting enrolment does not wipe the count.
	setup, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodAuthenticator, testClient)
	require.NoError(t, err)
	_, err = h.svc.TwoFactor.ConfirmSetup(ctx, a, "bad", "", testClient)
	require.ErrorIs(t, err, ErrTwoFactorLocked)

	_, err = h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodEmail, testClient)
	require.ErrorIs(t, err, ErrTwoFactorLocked)
	_, err = h.svc.TwoFactor.ConfirmSetup(ctx, a, totpAt(t, setup.Secret, h.clock.Now()), "", testClient)
	require.ErrorIs(t, err, ErrTwoFactorLocked)

	h.clock.Advance(DefaultTwoFactorLockDuration + time.Second)
	setup, err = h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodAuthenticator, testClient)
	require.NoError(t, err)
	_, err = h.svc.TwoFactor.ConfirmSetup(ctx, a, totpAt(t, setup.Secret, h.clock.Now()), "", testClient)
	require.NoError(t, err)
}

func TestSendTwoFactorCode_AuthorisesChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "sendcode@example.com")

	_, err := h.svc.TwoFactor.BeginSetup(ctx, a, domain.MethodEmail, testClient)
	require.NoError(t, err)
	_, err = h.svc.TwoFactor.ConfirmSetup(ctx, a, h.notifier.lastCode(t, domain.PurposeTwoFactor), "", testClient)
	require.NoError(t, err)

	res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	done, err := h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, h.notifier.lastCode(t, domain.PurposeTwoFactor), testClient)
	require.NoError(t, err)
	auth, err := h.svc.Auth.Authenticate(ctx, done.Tokens.AccessToken)
	require.NoError(t, err)

	sent, err := h.svc.Auth.SendTwoFactorCode(ctx, auth)
	require.NoError(t, err)
	require.Equal(t, domain.MethodEmail, sent.Method)
	require.Equal(t, "s*******@example.com", sent.Destination)

	fresh, err := h.svc.Auth.RegenerateBackupCodes(ctx, auth, h.notifier.lastCode(t, domain.PurposeTwoFactor), testClient)
	require.NoError(t, err)
	require.Len(t, fresh, BackupCodeCount)

	_, err = h.svc.Auth.SendTwoFactorCode(ctx, auth)
	require.NoError(t, err)
	require.NoError(t, h.svc.Auth.DisableTwoFactor(ctx, auth, testPassword, h.notifier.lastCode(t, domain.PurposeTwoFactor), testClient))
	require.False(t, h.reload(t, a.ID).TwoFactorEnabled)

	_, err = h.svc.Auth.SendTwoFactorCode(ctx, auth)
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)
}

func TestSendTwoFactorCode_AuthenticatorRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "sendtotp@example.com")
	enrolAuthenticator(t, h, h.reload(t, a.ID))

	_, err := h.svc.TwoFactor.SendCurrentCode(ctx, h.reload(t, a.ID))
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRefresh_KeepsMultiFactorAMR(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "amr@example.com")
	secret, _ := enrolAuthenticator(t, h, h.reload(t, a.ID))

	res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
	require.NoError(t, err)
	done, err := h.svc.Auth.VerifyLoginCode(ctx, res.ChallengeToken, totpAt(t, secret, h.clock.Now()), testClient)
	require.NoError(t, err)

	refresh := done.Tokens.RefreshToken
	for range 2 {
		pair, err := h.svc.Auth.Refresh(ctx, refresh, testClient)
		require.NoError(t, err)
		auth, err := h.svc.Auth.Authenticate(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Contains(t, auth.AMR, jwtx.AMRMFA)
		require.Contains(t, auth.AMR, jwtx.AMRPassword)
		refresh = pair.RefreshToken
	}

	plain := h.login(t, h.activeAccount(t, "amr-plain@example.com").Email)
	pair, err := h.svc.Auth.Refresh(ctx, plain.Tokens.RefreshToken, testClient)
	require.NoError(t, err)
	auth, err := h.svc.Auth.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, []string{jwtx.AMRPassword}, auth.AMR)
}
