package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	BackupCodeCount = 10

	DefaultTwoFactorCodeTTL      = 10 * time.Minute
	DefaultTwoFactorThreshold    = 5
	DefaultTwoFactorLockDuration = 15 * time.Minute

	totpPeriod = 30
	totpSkew   = 2
)

// TwoFactor manages the single second factor of each account.
type TwoFactor struct {
	Store        store.Store
	Ledger       *Ledger
	Sessions     *Sessions
	Audit        *AuditTrail
	Notifier     Notifier
	Metrics      *metricsx.Metrics
	Issuer       string
	CodeTTL      time.Duration
	Threshold    int
	LockDuration time.Duration
	Clock        Clock
}

func (t *TwoFactor) codeTTL() time.Duration {
	if t.CodeTTL <= 0 {
		return DefaultTwoFactorCodeTTL
	}
	return t.CodeTTL
}

func totpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// matchTOTP looks for code within two 30s steps either side of now and
// returns the matching step. Steps at or before notAfter are skipped.
func matchTOTP(code, secret string, now time.Time, notAfter int64) (int64, bool) {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != otp.DigitsSix.Length() {
		return 0, false
	}
	current := now.Unix() / totpPeriod
	for i := int64(-totpSkew); i <= totpSkew; i++ {
		step := current + i
		if step <= notAfter {
			continue
		}
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), totpOpts())
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// Config returns the account's configuration, or a zero config when none.
func (t *TwoFactor) Config(ctx context.Context, accountID string) (domain.TwoFactorConfig, error) {
	cfg, err := t.Store.TwoFactor().GetConfig(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.TwoFactorConfig{AccountID: accountID}, nil
	}
	if err != nil {
		return domain.TwoFactorConfig{}, fmt.Errorf("load two-factor config: %w", err)
	}
	return cfg, nil
}

// BeginSetup starts enrolment. Any earlier pending setup is replaced, so a
// method switch discards the previous secret material. Failure counters and
// an active lock carry over.
func (t *TwoFactor) BeginSetup(ctx context.Context, a domain.Account, method domain.TwoFactorMethod, client domain.ClientInfo) (domain.TwoFactorSetup, error) {
	if a.TwoFactorEnabled {
		return domain.TwoFactorSetup{}, ErrTwoFactorAlreadyEnabled
	}
	if method == domain.MethodSMS && a.Phone == "" {
		return domain.TwoFactorSetup{}, newError(KindInvalidRequest, "a phone number is required for SMS codes")
	}

	prev, err := t.Config(ctx, a.ID)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}
	if err := t.checkLock(prev); err != nil {
		return domain.TwoFactorSetup{}, err
	}

	now := t.Clock.now()
	cfg := domain.TwoFactorConfig{
		AccountID:      a.ID,
		Method:         method,
		FailedAttempts: prev.FailedAttempts,
		LockedUntil:    prev.LockedUntil,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !prev.CreatedAt.IsZero() {
		cfg.CreatedAt = prev.CreatedAt
	}
	setup := domain.TwoFactorSetup{Method: method}

	if method == domain.MethodAuthenticator {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      t.Issuer,
			AccountName: a.Email,
			Period:      totpPeriod,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return domain.TwoFactorSetup{}, fmt.Errorf("generate totp key: %w", err)
		}
		cfg.TempSecret = key.Secret()
		setup.Secret = key.Secret()
		setup.ProvisioningURL = key.URL()
	}

	if err := t.Store.TwoFactor().SaveConfig(ctx, cfg); err != nil {
		return domain.TwoFactorSetup{}, fmt.Errorf("save two-factor config: %w", err)
	}

	if method.UsesDeliveredCodes() {
		dest, channel := destination(a, method)
		setup.Destination = mask(dest)
		// Setup is interactive; a failed send is logged and the user retries.
		if err := t.sendCode(ctx, a, method); err != nil {
			slogx.FromContext(ctx).Warn("two-factor setup code delivery failed",
				"account_id", a.ID, "channel", channel, "err", err)
		}
	}

	t.Audit.Record(ctx, event(a.ID, domain.ActionTwoFactorSetupStarted, domain.SeverityLow, client,
		map[string]string{"method": string(method)}))
	return setup, nil
}

// ConfirmSetup checks code against the pending setup and enables the method.
// It returns the plaintext backup codes, which are never retrievable again,
// and revokes every session other than currentSessionID.
func (t *TwoFactor) ConfirmSetup(ctx context.Context, a domain.Account, code, currentSessionID string, client domain.ClientInfo) ([]string, error) {
	cfg, err := t.Config(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if cfg.IsEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if !cfg.SetupPending() {
		return nil, newError(KindInvalidRequest, "no two-factor setup in progress")
	}
	if err := t.checkLock(cfg); err != nil {
		return nil, err
	}

	var (
		valid bool
		step  int64
	)
	switch cfg.Method {
	case domain.MethodAuthenticator:
		step, valid = matchTOTP(code, cfg.TempSecret, t.Clock.now(), 0)
	default:
		valid, err = t.Ledger.RedeemCode(ctx, a.ID, strings.TrimSpace(code))
		if err != nil {
			return nil, err
		}
	}
	t.Metrics.TwoFactorVerification(string(cfg.Method), result(valid))
	if !valid {
		return nil, t.fail(ctx, a, cfg, client)
	}

	codes, hashes, err := newBackupCodes()
	if err != nil {
		return nil, err
	}

	now := t.Clock.now()
	enabled := domain.TwoFactorConfig{
		AccountID:     a.ID,
		Method:        cfg.Method,
		Secret:        cfg.TempSecret,
		IsEnabled:     true,
		ConfirmedStep: step,
		CreatedAt:     cfg.CreatedAt,
		UpdatedAt:     now,
	}
	err = t.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TwoFactor().SaveConfig(ctx, enabled); err != nil {
			return fmt.Errorf("enable two-factor: %w", err)
		}
		if err := tx.Accounts().SetTwoFactorEnabled(ctx, a.ID, true, now); err != nil {
			return fmt.Errorf("flag account: %w", err)
		}
		return replaceBackupCodes(ctx, tx, a.ID, hashes)
	})
	if err != nil {
		return nil, err
	}

	t.Audit.Record(ctx, event(a.ID, domain.ActionTwoFactorEnabled, domain.SeverityMedium, client,
		map[string]string{"method": string(cfg.Method)}))
	if _, err := t.Sessions.RevokeAll(ctx, a.ID, domain.ReasonAllSessionsRevoked, currentSessionID, a.ID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke sessions after enabling two-factor", "account_id", a.ID, "err", err)
	}
	sendAlert(ctx, t.Notifier, a.Email, domain.SecurityAlert{
		AccountID: a.ID,
		Action:    domain.ActionTwoFactorEnabled,
		Message:   "Two-factor authentication was enabled on your account.",
		IP:        client.IP,
		At:        now,
	})
	return codes, nil
}

// VerifyCode checks a login-time code for an enabled account: TOTP for
// authenticator, otherwise the pending delivered code. Backup codes are
// accepted as a fallback and are consumed exactly once.
func (t *TwoFactor) VerifyCode(ctx context.Context, a domain.Account, code string, client domain.ClientInfo) error {
	cfg, err := t.Config(ctx, a.ID)
	if err != nil {
		return err
	}
	if !cfg.IsEnabled {
		return ErrTwoFactorNotEnabled
	}
	if err := t.checkLock(cfg); err != nil {
		return err
	}

	code = strings.TrimSpace(code)
	valid, err := t.checkPrimary(ctx, a.ID, cfg, code)
	if err != nil {
		return err
	}
	method := string(cfg.Method)

	if !valid && code != "" {
		used, err := t.Store.BackupCodes().ConsumeBackupCode(ctx, a.ID, cryptox.FingerprintToken(cryptox.NormalizeBackupCode(code)))
		if err != nil {
			return fmt.Errorf("consume backup code: %w", err)
		}
		if used {
			valid = true
			method = "backup_code"
			t.Audit.Record(ctx, event(a.ID, domain.ActionBackupCodeUsed, domain.SeverityMedium, client, nil))
		}
	}

	t.Metrics.TwoFactorVerification(method, result(valid))
	if !valid {
		return t.fail(ctx, a, cfg, client)
	}
	if cfg.FailedAttempts > 0 {
		if err := t.Store.TwoFactor().ResetFailures(ctx, a.ID, t.Clock.now()); err != nil {
			slogx.FromContext(ctx).Warn("failed to reset two-factor failures", "account_id", a.ID, "err", err)
		}
	}
	return nil
}

func (t *TwoFactor) checkPrimary(ctx context.Context, accountID string, cfg domain.TwoFactorConfig, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	if cfg.Method == domain.MethodAuthenticator {
		_, ok := matchTOTP(code, cfg.Secret, t.Clock.now(), cfg.ConfirmedStep)
		return ok, nil
	}
	return t.Ledger.RedeemCode(ctx, accountID, code)
}

func (t *TwoFactor) checkLock(cfg domain.TwoFactorConfig) error {
	now := t.Clock.now()
	if cfg.IsLocked(now) {
		return lockedError(KindTwoFactorLocked, "too many invalid codes, try again later", *cfg.LockedUntil, now)
	}
	return nil
}

// fail counts a bad code and returns the error the caller should see.
func (t *TwoFactor) fail(ctx context.Context, a domain.Account, cfg domain.TwoFactorConfig, client domain.ClientInfo) error {
	threshold := t.Threshold
	if threshold <= 0 {
		threshold = DefaultTwoFactorThreshold
	}
	lock := t.LockDuration
	if lock <= 0 {
		lock = DefaultTwoFactorLockDuration
	}
	now := t.Clock.now()

	state, err := t.Store.TwoFactor().RecordFailure(ctx, a.ID, threshold, now.Add(lock), now)
	if err != nil {
		return fmt.Errorf("record two-factor failure: %w", err)
	}
	sev := domain.SeverityMedium
	if state.FailedCount >= threshold {
		sev = domain.SeverityHigh
	}
	t.Audit.Record(ctx, event(a.ID, domain.ActionTwoFactorFailed, sev, client, map[string]string{
		"method":          string(cfg.Method),
		"failed_attempts": strconv.Itoa(state.FailedCount),
	}))
	if state.LockedUntil != nil && now.Before(*state.LockedUntil) {
		return lockedError(KindTwoFactorLocked, "too many invalid codes, try again later", *state.LockedUntil, now)
	}
	return ErrInvalidTwoFactorCode
}

// SendLoginCode delivers a fresh code for email/SMS accounts. The channel
// always comes from the account's own config.
func (t *TwoFactor) SendLoginCode(ctx context.Context, a domain.Account, cfg domain.TwoFactorConfig) error {
	return t.sendCode(ctx, a, cfg.Method)
}

// SendCurrentCode delivers a fresh code to an enabled email/SMS account so it
// can authorise two-factor changes without spending a backup code. Delivery
// failures are logged and the caller may retry. It returns the masked
// destination.
func (t *TwoFactor) SendCurrentCode(ctx context.Context, a domain.Account) (domain.TwoFactorSetup, error) {
	cfg, err := t.Config(ctx, a.ID)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}
	if !cfg.IsEnabled {
		return domain.TwoFactorSetup{}, ErrTwoFactorNotEnabled
	}
	if !cfg.Method.UsesDeliveredCodes() {
		return domain.TwoFactorSetup{}, newError(KindInvalidRequest, "authenticator codes are not delivered")
	}
	if err := t.checkLock(cfg); err != nil {
		return domain.TwoFactorSetup{}, err
	}

	dest, channel := destination(a, cfg.Method)
	if err := t.sendCode(ctx, a, cfg.Method); err != nil {
		slogx.FromContext(ctx).Warn("two-factor code delivery failed",
			"account_id", a.ID, "channel", channel, "err", err)
	}
	return domain.TwoFactorSetup{Method: cfg.Method, Destination: mask(dest)}, nil
}

func (t *TwoFactor) sendCode(ctx context.Context, a domain.Account, method domain.TwoFactorMethod) error {
	code, tok, err := t.Ledger.IssueCode(ctx, a.ID, t.codeTTL())
	if err != nil {
		return err
	}
	dest, channel := destination(a, method)
	if dest == "" {
		return fmt.Errorf("no destination for %s delivery", channel)
	}
	err = sendCode(ctx, t.Notifier, domain.OneTimeCode{
		Destination: dest,
		Code:        code,
		Channel:     channel,
		Purpose:     domain.PurposeTwoFactor,
		ExpiresAt:   tok.ExpiresAt,
	})
	t.Metrics.Notification(string(channel), result(err == nil))
	return err
}

// SuspendForDeliveryFailure turns two-factor off after a login-time code
// could not be delivered, so the holder is not locked out. The method stays
// recorded and the holder can enrol again.
func (t *TwoFactor) SuspendForDeliveryFailure(ctx context.Context, a domain.Account, cfg domain.TwoFactorConfig, cause error, client domain.ClientInfo) error {
	now := t.Clock.now()
	cfg.IsEnabled = false
	cfg.Secret = ""
	cfg.TempSecret = ""
	cfg.FailedAttempts = 0
	cfg.LockedUntil = nil
	cfg.UpdatedAt = now

	err := t.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TwoFactor().SaveConfig(ctx, cfg); err != nil {
			return err
		}
		if err := tx.Tokens().DeleteAccountTokens(ctx, a.ID, domain.TokenTwoFactorCode); err != nil {
			return err
		}
		return tx.Accounts().SetTwoFactorEnabled(ctx, a.ID, false, now)
	})
	if err != nil {
		return fmt.Errorf("disable two-factor after delivery failure: %w", err)
	}

	details := map[string]string{"method": string(cfg.Method), "cause": cause.Error()}
	slogx.FromContext(ctx).Error("two-factor disabled after code delivery failure",
		"account_id", a.ID, "method", cfg.Method, "err", cause)
	t.Audit.Record(ctx, event(a.ID, domain.ActionTwoFactorAutoDisabled, domain.SeverityHigh, client, details))
	notifyAdmins(ctx, t.Notifier, domain.AdminNotice{
		AccountID: a.ID,
		Action:    domain.ActionTwoFactorAutoDisabled,
		Severity:  domain.SeverityHigh,
		Message:   "Two-factor was disabled because a login code could not be delivered.",
		Details:   details,
		At:        now,
	})
	return nil
}

// Disable removes the second factor after a valid current code. Password
// re-authentication is the caller's job.
func (t *TwoFactor) Disable(ctx context.Context, a domain.Account, code, currentSessionID string, client domain.ClientInfo) error {
	if err := t.VerifyCode(ctx, a, code, client); err != nil {
		return err
	}

	now := t.Clock.now()
	err := t.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TwoFactor().DeleteConfig(ctx, a.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, a.ID); err != nil {
			return err
		}
		if err := tx.Tokens().DeleteAccountTokens(ctx, a.ID, domain.TokenTwoFactorCode); err != nil {
			return err
		}
		return tx.Accounts().SetTwoFactorEnabled(ctx, a.ID, false, now)
	})
	if err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	t.Audit.Record(ctx, event(a.ID, domain.ActionTwoFactorDisabled, domain.SeverityHigh, client, nil))
	if _, err := t.Sessions.RevokeAll(ctx, a.ID, domain.ReasonAllSessionsRevoked, currentSessionID, a.ID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke sessions after disabling two-factor", "account_id", a.ID, "err", err)
	}
	sendAlert(ctx, t.Notifier, a.Email, domain.SecurityAlert{
		AccountID: a.ID,
		Action:    domain.ActionTwoFactorDisabled,
		Message:   "Two-factor authentication was disabled on your account.",
		IP:        client.IP,
		At:        now,
	})
	return nil
}

// RegenerateBackupCodes replaces all backup codes after a valid current code.
func (t *TwoFactor) RegenerateBackupCodes(ctx context.Context, a domain.Account, code string, client domain.ClientInfo) ([]string, error) {
	if err := t.VerifyCode(ctx, a, code, client); err != nil {
		return nil, err
	}
	codes, hashes, err := newBackupCodes()
	if err != nil {
		return nil, err
	}
	err = t.Store.WithTx(ctx, func(tx store.Tx) error {
		return replaceBackupCodes(ctx, tx, a.ID, hashes)
	})
	if err != nil {
		return nil, err
	}
	t.Audit.Record(ctx, event(a.ID, domain.ActionBackupCodesRegenerated, domain.SeverityMedium, client, nil))
	return codes, nil
}

// BackupCodesRemaining counts unused backup codes.
func (t *TwoFactor) BackupCodesRemaining(ctx context.Context, accountID string) (int, error) {
	n, err := t.Store.BackupCodes().CountBackupCodes(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}

func newBackupCodes() ([]string, []string, error) {
	codes := make([]string, BackupCodeCount)
	hashes := make([]string, BackupCodeCount)
	for i := range BackupCodeCount {
		c, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes[i] = c
		hashes[i] = cryptox.FingerprintToken(cryptox.NormalizeBackupCode(c))
	}
	return codes, hashes, nil
}

func replaceBackupCodes(ctx context.Context, tx store.Tx, accountID string, hashes []string) error {
	if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, accountID); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}
	for _, h := range hashes {
		if err := tx.BackupCodes().CreateBackupCode(ctx, accountID, h); err != nil {
			return fmt.Errorf("store backup code: %w", err)
		}
	}
	return nil
}

func destination(a domain.Account, method domain.TwoFactorMethod) (string, domain.DeliveryChannel) {
	if method == domain.MethodSMS {
		return a.Phone, domain.ChannelSMS
	}
	return a.Email, domain.ChannelEmail
}

// mask hides most of an email local part or phone number.
func mask(dest string) string {
	if at := strings.IndexByte(dest, '@'); at > 0 {
		return dest[:1] + strings.Repeat("*", max(at-1, 1)) + dest[at:]
	}
	if len(dest) <= 4 {
		return strings.Repeat("*", len(dest))
	}
	return strings.Repeat("*", len(dest)-4) + dest[len(dest)-4:]
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
