package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
	"github.com/aussiebroadwan/proptrust/pkg/idx"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

const (
	DefaultVerificationTTL  = 24 * time.Hour
	DefaultResetTTL         = time.Hour
	DefaultChallengeTTL     = 10 * time.Minute
	DefaultSuspiciousWindow = time.Hour
)

// AuthService sequences the components for every account-facing flow.
type AuthService struct {
	Store       store.Store
	KeyManager  *jwtx.KeyManager
	Credentials *Credentials
	Lockout     *Lockout
	Ledger      *Ledger
	TwoFactor   *TwoFactor
	Sessions    *Sessions
	Audit       *AuditTrail
	Notifier    Notifier
	Profiles    *ProfileRegistry
	Metrics     *metricsx.Metrics

	Issuer   string
	Audience []string

	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	SuspiciousWindow time.Duration

	Clock Clock
}

var _ httpx.Authenticator = (*AuthService)(nil)

type RegisterRequest struct {
	Email    string
	Password string
	Phone    string
	Role     domain.Role
}

// LoginResult is either a token pair or a pending second-factor challenge.
type LoginResult struct {
	Account domain.Account
	Tokens  *domain.TokenPair
	Profile *domain.Profile

	TwoFactorRequired  bool
	TwoFactorMethod    domain.TwoFactorMethod
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

func (s *AuthService) accessTTL() time.Duration {
	if s.AccessTTL <= 0 {
		return jwtx.DefaultAccessTokenTTL
	}
	return s.AccessTTL
}

func (s *AuthService) refreshTTL() time.Duration {
	if s.RefreshTTL <= 0 {
		return jwtx.DefaultRefreshTokenTTL
	}
	return s.RefreshTTL
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", newError(KindInvalidRequest, "invalid email address")
	}
	return email, nil
}

// statusError maps an account status to the error a new session gets.
func statusError(a domain.Account) error {
	switch a.Status {
	case domain.StatusActive, domain.StatusPendingDeletion:
		return nil
	case domain.StatusPendingActivation:
		return ErrAccountNotActivated
	case domain.StatusSuspended:
		return ErrAccountSuspended
	case domain.StatusDeleted:
		return ErrAccountDeleted
	default:
		return ErrForbidden
	}
}

func (s *AuthService) account(ctx context.Context, id string) (domain.Account, error) {
	a, err := s.Store.Accounts().GetAccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return a, nil
}

// Register creates a pending_activation account and sends the email
// verification token.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, client domain.ClientInfo) (domain.Account, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Account{}, err
	}
	role, err := domain.ParseRole(string(req.Role))
	if err != nil {
		return domain.Account{}, newError(KindInvalidRequest, "unknown role")
	}
	if !role.SelfRegistrable() {
		return domain.Account{}, newError(KindForbidden, "this role cannot be self-registered")
	}
	if err := ValidatePolicy(req.Password, email); err != nil {
		return domain.Account{}, err
	}

	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.Clock.now()
	a := domain.Account{
		ID:           idx.New().String(),
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		Role:         role,
		PasswordHash: hash,
		Status:       domain.StatusPendingActivation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var (
		token string
		tok   domain.LedgerToken
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().CreateAccount(ctx, a); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return fmt.Errorf("create account: %w", err)
		}
		if err := tx.PasswordHistory().AddEntry(ctx, domain.PasswordHistoryEntry{
			ID:           idx.New().String(),
			AccountID:    a.ID,
			PasswordHash: hash,
			Reason:       domain.PasswordReasonInitial,
			ChangedBy:    a.ID,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append password history: %w", err)
		}
		var err error
		token, tok, err = s.Ledger.issueIn(ctx, tx, a.ID, domain.TokenEmailVerification, DefaultVerificationTTL, domain.TokenMetadata{IP: client.IP})
		return err
	})
	if err != nil {
		return domain.Account{}, err
	}

	slogx.FromContext(ctx).Info("account registered", "account_id", a.ID, "role", a.Role)
	s.Audit.Record(ctx, event(a.ID, domain.ActionRegistered, domain.SeverityLow, client,
		map[string]string{"role": string(a.Role)}))
	s.sendLink(ctx, a, token, tok, domain.PurposeEmailVerification)
	return a, nil
}

func (s *AuthService) sendLink(ctx context.Context, a domain.Account, token string, tok domain.LedgerToken, purpose domain.CodePurpose) {
	err := sendCode(ctx, s.Notifier, domain.OneTimeCode{
		Destination: a.Email,
		Code:        token,
		Channel:     domain.ChannelEmail,
		Purpose:     purpose,
		ExpiresAt:   tok.ExpiresAt,
	})
	s.Metrics.Notification(string(domain.ChannelEmail), result(err == nil))
	if err != nil {
		slogx.FromContext(ctx).Warn("email delivery failed", "account_id", a.ID, "purpose", purpose, "err", err)
	}
}

// VerifyEmail redeems a verification token and activates the account.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, client domain.ClientInfo) error {
	tok, err := s.Ledger.Redeem(ctx, domain.TokenEmailVerification, token)
	if err != nil {
		return err
	}
	if err := s.Store.Accounts().MarkEmailVerified(ctx, tok.AccountID, s.Clock.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("mark email verified: %w", err)
	}
	s.Audit.Record(ctx, event(tok.AccountID, domain.ActionEmailVerified, domain.SeverityLow, client, nil))
	return nil
}

// ResendVerification sends a fresh verification token. It reports success
// whether or not the email is registered.
func (s *AuthService) ResendVerification(ctx context.Context, email string, client domain.ClientInfo) error {
	log := slogx.FromContext(ctx)
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}
	a, err := s.Store.Accounts().GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("resend verification lookup failed", "err", err)
		}
		return nil
	}
	if a.EmailVerified {
		return nil
	}

	if err := s.Store.Tokens().DeleteAccountTokens(ctx, a.ID, domain.TokenEmailVerification); err != nil {
		log.Error("failed to clear verification tokens", "account_id", a.ID, "err", err)
		return nil
	}
	token, tok, err := s.Ledger.Issue(ctx, a.ID, domain.TokenEmailVerification, DefaultVerificationTTL, domain.TokenMetadata{IP: client.IP})
	if err != nil {
		log.Error("failed to issue verification token", "account_id", a.ID, "err", err)
		return nil
	}
	s.sendLink(ctx, a, token, tok, domain.PurposeEmailVerification)
	return nil
}

// Login checks the lock, then the password, then account status, then the
// second factor. Accounts with an email/SMS factor whose code cannot be
// delivered fall back to password-only login and have two-factor disabled.
func (s *AuthService) Login(ctx context.Context, email, password string, client domain.ClientInfo) (LoginResult, error) {
	log := slogx.FromContext(ctx)

	email, err := normalizeEmail(email)
	if err != nil {
		s.Credentials.BurnVerification(password)
		s.Metrics.LoginAttempt("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}
	a, err := s.Store.Accounts().GetAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.Credentials.BurnVerification(password)
		s.Metrics.LoginAttempt("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("load account: %w", err)
	}

	if locked, _ := s.Lockout.IsLocked(a); locked {
		s.Metrics.LoginAttempt("locked")
		return LoginResult{}, lockedError(KindAccountLocked, "account is temporarily locked", *a.LockedUntil, s.Clock.now())
	}

	if !s.Credentials.VerifyPassword(a, password) {
		res, err := s.Lockout.RecordFailure(ctx, a, client)
		if err != nil {
			return LoginResult{}, err
		}
		s.Audit.Record(ctx, event(a.ID, domain.ActionLoginFailed, domain.SeverityMedium, client, map[string]string{
			"reason": "invalid_password",
		}))
		if res.Locked {
			s.Metrics.LoginAttempt("locked")
			return LoginResult{}, lockedError(KindAccountLocked, "account is temporarily locked", res.LockedUntil, s.Clock.now())
		}
		s.Metrics.LoginAttempt("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := statusError(a); err != nil {
		s.Metrics.LoginAttempt(string(KindOf(err)))
		return LoginResult{}, err
	}

	if a.FailedLoginCount > 0 || a.LockedUntil != nil {
		if err := s.Lockout.RecordSuccess(ctx, a.ID); err != nil {
			return LoginResult{}, err
		}
		a.FailedLoginCount = 0
		a.LockedUntil = nil
	}

	if !a.TwoFactorEnabled {
		return s.completeLogin(ctx, a, []string{jwtx.AMRPassword}, client)
	}

	cfg, err := s.TwoFactor.Config(ctx, a.ID)
	if err != nil {
		return LoginResult{}, err
	}
	if !cfg.IsEnabled {
		log.Warn("account flagged for two-factor without an enabled config", "account_id", a.ID)
		return s.completeLogin(ctx, a, []string{jwtx.AMRPassword}, client)
	}

	if cfg.Method.UsesDeliveredCodes() {
		if err := s.TwoFactor.SendLoginCode(ctx, a, cfg); err != nil {
			if err := s.TwoFactor.SuspendForDeliveryFailure(ctx, a, cfg, err, client); err != nil {
				return LoginResult{}, err
			}
			a.TwoFactorEnabled = false
			return s.completeLogin(ctx, a, []string{jwtx.AMRPassword}, client)
		}
	}

	challenge, tok, err := s.Ledger.Issue(ctx, a.ID, domain.TokenLoginChallenge, DefaultChallengeTTL, domain.TokenMetadata{
		Device: client.UserAgent,
		IP:     client.IP,
	})
	if err != nil {
		return LoginResult{}, err
	}
	s.Metrics.LoginAttempt("two_factor_required")
	return LoginResult{
		Account:            a,
		TwoFactorRequired:  true,
		TwoFactorMethod:    cfg.Method,
		ChallengeToken:     challenge,
		ChallengeExpiresAt: tok.ExpiresAt,
	}, nil
}

// VerifyLoginCode completes a login that returned TwoFactorRequired. The
// challenge survives wrong codes until it expires or two-factor locks.
func (s *AuthService) VerifyLoginCode(ctx context.Context, challenge, code string, client domain.ClientInfo) (LoginResult, error) {
	tok, err := s.Ledger.Peek(ctx, domain.TokenLoginChallenge, challenge)
	if err != nil {
		return LoginResult{}, err
	}
	a, err := s.account(ctx, tok.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrTokenNotFound
		}
		return LoginResult{}, err
	}
	if err := statusError(a); err != nil {
		return LoginResult{}, err
	}
	if err := s.TwoFactor.VerifyCode(ctx, a, code, client); err != nil {
		return LoginResult{}, err
	}
	if _, err := s.Ledger.Redeem(ctx, domain.TokenLoginChallenge, challenge); err != nil {
		return LoginResult{}, err
	}
	return s.completeLogin(ctx, a, []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA}, client)
}

func (s *AuthService) completeLogin(ctx context.Context, a domain.Account, amr []string, client domain.ClientInfo) (LoginResult, error) {
	sid := idx.New().String()
	var pair domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.issueSession(ctx, tx, a, sid, amr, client)
		return err
	})
	if err != nil {
		return LoginResult{}, err
	}

	slogx.FromContext(ctx).Info("login succeeded", "account_id", a.ID, "session_id", sid)
	s.Metrics.LoginAttempt("success")
	s.Audit.Record(ctx, event(a.ID, domain.ActionLoginSuccess, domain.SeverityLow, client, map[string]string{
		"session_id": sid,
		"amr":        strings.Join(amr, " "),
	}))
	s.checkSuspicious(ctx, a, client)

	profile, err := s.Profiles.Profile(ctx, a)
	if err != nil {
		slogx.FromContext(ctx).Warn("profile lookup failed", "account_id", a.ID, "err", err)
		profile = domain.Profile{Role: a.Role}
	}
	return LoginResult{Account: a, Tokens: &pair, Profile: &profile}, nil
}

func (s *AuthService) checkSuspicious(ctx context.Context, a domain.Account, client domain.ClientInfo) {
	window := s.SuspiciousWindow
	if window <= 0 {
		window = DefaultSuspiciousWindow
	}
	matched, err := s.Audit.DetectSuspicious(ctx, a.ID, window)
	if err != nil {
		slogx.FromContext(ctx).Warn("suspicious activity scan failed", "account_id", a.ID, "err", err)
		return
	}
	if len(matched) == 0 {
		return
	}
	details := map[string]string{"heuristics": strings.Join(matched, ",")}
	s.Audit.Record(ctx, event(a.ID, domain.ActionSuspiciousActivity, domain.SeverityHigh, client, details))
	sendAlert(ctx, s.Notifier, a.Email, domain.SecurityAlert{
		AccountID: a.ID,
		Action:    domain.ActionSuspiciousActivity,
		Message:   "We noticed unusual sign-in activity on your account.",
		Details:   details,
		IP:        client.IP,
		At:        s.Clock.now(),
	})
}

// issueSession signs an access token and stores it with a fresh refresh
// token under sid. q must be the transaction when called inside one.
func (s *AuthService) issueSession(ctx context.Context, q store.Store, a domain.Account, sid string, amr []string, client domain.ClientInfo) (domain.TokenPair, error) {
	access, expiresAt, err := s.signAccess(a, sid, amr)
	if err != nil {
		return domain.TokenPair{}, err
	}
	meta := domain.TokenMetadata{SessionID: sid, Device: client.UserAgent, IP: client.IP, AMR: amr}
	if _, err := s.Ledger.record(ctx, q, a.ID, domain.TokenAccess, access, expiresAt, meta); err != nil {
		return domain.TokenPair{}, err
	}
	refresh, _, err := s.Ledger.issueIn(ctx, q, a.ID, domain.TokenRefresh, s.refreshTTL(), meta)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL(),
		SessionID:    sid,
	}, nil
}

func (s *AuthService) signAccess(a domain.Account, sid string, amr []string) (string, time.Time, error) {
	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return "", time.Time{}, errors.New("no signing key available")
	}
	claims := jwtx.NewAccessClaims(a.ID, sid, string(a.Role), amr, s.accessTTL(), s.Issuer, s.Audience, s.Clock.now())
	token, err := signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// Refresh rotates the refresh token and issues a new access token in the
// same session. A suspended or deleted account keeps its refresh token
// unconsumed and gets the status error.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client domain.ClientInfo) (domain.TokenPair, error) {
	var (
		a      domain.Account
		access string
	)
	meta := domain.TokenMetadata{Device: client.UserAgent, IP: client.IP}
	refresh, tok, err := s.Ledger.RotateRefresh(ctx, refreshToken, s.refreshTTL(), meta,
		func(tx store.Tx, old domain.LedgerToken) error {
			var err error
			a, err = tx.Accounts().GetAccountByID(ctx, old.AccountID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrTokenNotFound
				}
				return fmt.Errorf("load account: %w", err)
			}
			if err := statusError(a); err != nil {
				return err
			}
			amr := old.AMR
			if len(amr) == 0 {
				amr = []string{jwtx.AMRPassword}
			}
			var expiresAt time.Time
			access, expiresAt, err = s.signAccess(a, old.SessionID, amr)
			if err != nil {
				return err
			}
			if meta.Device == "" {
				meta.Device = old.Device
			}
			meta.SessionID = old.SessionID
			meta.AMR = amr
			_, err = s.Ledger.record(ctx, tx, a.ID, domain.TokenAccess, access, expiresAt, meta)
			return err
		})
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Audit.Record(ctx, event(a.ID, domain.ActionTokenRefreshed, domain.SeverityLow, client,
		map[string]string{"session_id": tok.SessionID}))
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL(),
		SessionID:    tok.SessionID,
	}, nil
}

// Logout ends the caller's session and blacklists the presented token.
func (s *AuthService) Logout(ctx context.Context, auth httpx.AuthContext, client domain.ClientInfo) error {
	if err := s.Ledger.Revoke(ctx, auth.RawToken, domain.KindAccess, auth.AccountID, domain.ReasonLogout, auth.ExpiresAt); err != nil {
		return err
	}
	if err := s.Sessions.RevokeSession(ctx, auth.AccountID, auth.SessionID, domain.ReasonLogout); err != nil && !errors.Is(err, ErrTokenNotFound) {
		return err
	}
	s.Audit.Record(ctx, event(auth.AccountID, domain.ActionLogout, domain.SeverityLow, client,
		map[string]string{"session_id": auth.SessionID}))
	return nil
}

// LogoutAll revokes every session of the caller, optionally keeping the
// current one.
func (s *AuthService) LogoutAll(ctx context.Context, auth httpx.AuthContext, keepCurrent bool) (int, error) {
	except := ""
	if keepCurrent {
		except = auth.SessionID
	}
	return s.Sessions.RevokeAll(ctx, auth.AccountID, domain.ReasonAllSessionsRevoked, except, auth.AccountID)
}

// RevokeSession ends one of the caller's sessions by id.
func (s *AuthService) RevokeSession(ctx context.Context, auth httpx.AuthContext, sessionID string, client domain.ClientInfo) error {
	err := s.Sessions.RevokeSession(ctx, auth.AccountID, sessionID, domain.ReasonLogout)
	if errors.Is(err, ErrTokenNotFound) {
		return newError(KindNotFound, "session not found")
	}
	if err != nil {
		return err
	}
	e := event(auth.AccountID, domain.ActionSessionsRevoked, domain.SeverityMedium, client, map[string]string{
		"reason":     string(domain.ReasonLogout),
		"session_id": sessionID,
	})
	e.PerformedBy = auth.AccountID
	s.Audit.Record(ctx, e)
	return nil
}

// ForgotPassword issues a reset token when the email belongs to an account
// that may sign in. It reports success either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, client domain.ClientInfo) error {
	log := slogx.FromContext(ctx)
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}
	a, err := s.Store.Accounts().GetAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("forgot password lookup failed", "err", err)
		}
		return nil
	}
	if a.Status == domain.StatusSuspended || a.Status == domain.StatusDeleted {
		return nil
	}

	if err := s.Store.Tokens().DeleteAccountTokens(ctx, a.ID, domain.TokenPasswordReset); err != nil {
		log.Error("failed to clear reset tokens", "account_id", a.ID, "err", err)
		return nil
	}
	token, tok, err := s.Ledger.Issue(ctx, a.ID, domain.TokenPasswordReset, DefaultResetTTL, domain.TokenMetadata{IP: client.IP})
	if err != nil {
		log.Error("failed to issue reset token", "account_id", a.ID, "err", err)
		return nil
	}
	s.Audit.Record(ctx, event(a.ID, domain.ActionPasswordResetRequested, domain.SeverityLow, client, nil))
	s.sendLink(ctx, a, token, tok, domain.PurposePasswordReset)
	return nil
}

// ResetPassword sets a new password with a reset token. The token is
// consumed in the same transaction as the password write, so a rejected
// password leaves it usable. All sessions are revoked and any lock cleared.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string, client domain.ClientInfo) error {
	tok, err := s.Ledger.Peek(ctx, domain.TokenPasswordReset, token)
	if err != nil {
		return err
	}
	a, err := s.account(ctx, tok.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenNotFound
		}
		return err
	}

	err = s.Credentials.SetPassword(ctx, a, newPassword, domain.PasswordReasonReset, a.ID, func(tx store.Tx) error {
		if _, err := s.Ledger.redeemIn(ctx, tx, domain.TokenPasswordReset, token); err != nil {
			return err
		}
		return tx.Accounts().ResetLoginFailures(ctx, a.ID, s.Clock.now())
	})
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, event(a.ID, domain.ActionPasswordReset, domain.SeverityHigh, client, nil))
	s.afterPasswordChange(ctx, a, "", client)
	return nil
}

// ChangePassword replaces the caller's password after re-checking the
// current one; every other session is revoked.
func (s *AuthService) ChangePassword(ctx context.Context, auth httpx.AuthContext, current, next string, client domain.ClientInfo) error {
	a, err := s.account(ctx, auth.AccountID)
	if err != nil {
		return err
	}
	if err := s.reauthenticate(ctx, a, current, client); err != nil {
		return err
	}
	if err := s.Credentials.SetPassword(ctx, a, next, domain.PasswordReasonUserChange, a.ID, nil); err != nil {
		return err
	}
	s.Audit.Record(ctx, event(a.ID, domain.ActionPasswordChanged, domain.SeverityMedium, client, nil))
	s.afterPasswordChange(ctx, a, auth.SessionID, client)
	return nil
}

// reauthenticate re-checks the password of a signed-in caller. A wrong
// password counts toward the lockout like a failed login.
func (s *AuthService) reauthenticate(ctx context.Context, a domain.Account, password string, client domain.ClientInfo) error {
	now := s.Clock.now()
	if locked, _ := s.Lockout.IsLocked(a); locked {
		return lockedError(KindAccountLocked, "account is temporarily locked", *a.LockedUntil, now)
	}
	if s.Credentials.VerifyPassword(a, password) {
		if a.FailedLoginCount > 0 {
			return s.Lockout.RecordSuccess(ctx, a.ID)
		}
		return nil
	}
	res, err := s.Lockout.RecordFailure(ctx, a, client)
	if err != nil {
		return err
	}
	s.Audit.Record(ctx, event(a.ID, domain.ActionLoginFailed, domain.SeverityMedium, client, map[string]string{
		"reason": "invalid_current_password",
	}))
	if res.Locked {
		return lockedError(KindAccountLocked, "account is temporarily locked", res.LockedUntil, now)
	}
	return ErrInvalidCredentials
}

func (s *AuthService) afterPasswordChange(ctx context.Context, a domain.Account, keepSession string, client domain.ClientInfo) {
	if _, err := s.Sessions.RevokeAll(ctx, a.ID, domain.ReasonPasswordChanged, keepSession, a.ID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke sessions after password change", "account_id", a.ID, "err", err)
	}
	sendAlert(ctx, s.Notifier, a.Email, domain.SecurityAlert{
		AccountID: a.ID,
		Action:    domain.ActionPasswordChanged,
		Message:   "The password on your account was changed.",
		IP:        client.IP,
		At:        s.Clock.now(),
	})
}

// Authenticate resolves a bearer token: blacklist first, then signature and
// expiry, then the account's current status. Role comes from the account,
// not the token, so role changes apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (httpx.AuthContext, error) {
	revoked, err := s.Ledger.IsBlacklisted(ctx, raw)
	if err != nil {
		return httpx.AuthContext{}, err
	}
	if revoked {
		s.Metrics.BlacklistRejected()
		return httpx.AuthContext{}, newError(KindInvalidToken, "token has been revoked")
	}

	claims, err := s.KeyManager.Verifier.Verify(raw)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return httpx.AuthContext{}, ErrTokenExpired
		}
		return httpx.AuthContext{}, ErrInvalidToken
	}

	a, err := s.account(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return httpx.AuthContext{}, ErrInvalidToken
		}
		return httpx.AuthContext{}, err
	}
	if err := statusError(a); err != nil {
		return httpx.AuthContext{}, err
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return httpx.AuthContext{
		AccountID: a.ID,
		Role:      string(a.Role),
		SessionID: claims.SID,
		TokenID:   claims.ID,
		AMR:       claims.AMR,
		ExpiresAt: exp,
		RawToken:  raw,
	}, nil
}

// Me returns the caller's account and profile.
func (s *AuthService) Me(ctx context.Context, auth httpx.AuthContext) (domain.Account, domain.Profile, error) {
	a, err := s.account(ctx, auth.AccountID)
	if err != nil {
		return domain.Account{}, domain.Profile{}, err
	}
	p, err := s.Profiles.Profile(ctx, a)
	if err != nil {
		return domain.Account{}, domain.Profile{}, err
	}
	return a, p, nil
}

// BeginTwoFactorSetup starts enrolment for the caller.
func (s *AuthService) BeginTwoFactorSetup(ctx context.Context, auth httpx.AuthContext, method domain.TwoFactorMethod, client domain.ClientInfo) (domain.TwoFactorSetup, error) {
	a, err := s.account(ctx, auth.AccountID)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}
	return s.TwoFactor.BeginSetup(ctx, a, method, client)
}

// EnableTwoFactor confirms enrolment and returns the backup codes.
func (s *AuthService) EnableTwoFactor(ctx context.Context, auth httpx.AuthContext, code string, client domain.ClientInfo) ([]string, error) {
	a, err := s.account(ctx, auth.AccountID)
	if err != nil {
		return nil, err
	}
	return s.TwoFactor.ConfirmSetup(ctx, a, code, auth.SessionID, client)
}

// DisableTwoFactor requires the password and a current code.
func (s *AuthService) DisableTwoFactor(ctx context.Context, auth httpx.AuthContext, password, code string, client domain.ClientInfo) error {
	a, err := s.account(ctx, auth.AccountID)
	if err != nil {
		return err
	}
	if err := s.reauthenticate(ctx, a, password, client); err != nil {
		return err
	}
	return s.TwoFactor.Disable(ctx, a, code, auth.SessionID, client)
}

// SendTwoFactorCode delivers a fresh code to the caller's email/SMS factor.
func (s *AuthService) SendTwoFactorCode(ctx context.Context, auth httpx.AuthContext) (domain.TwoFactorSetup, error) {
	a, err := s.account(ctx, auth.AccountID)
	if err != nil {
		return domain.TwoFactorSetup{}, err
	}
	return s.TwoFactor.SendCurrentCode(ctx, a)
}

// RegenerateBackupCodes replaces the caller's backup codes.
func (s *AuthService) RegenerateBackupCodes(ctx context.Context, auth httpx.AuthContext, code string, client domain.ClientInfo) ([]string, error) {
	a, err := s.account(ctx, auth.AccountID)
	if err != nil {
		return nil, err
	}
	return s.TwoFactor.RegenerateBackupCodes(ctx, a, code, client)
}
