package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the PropTrust authentication service.
// It provides the unauthenticated operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates a pending account. The account can sign in once the
// emailed verification token is redeemed with VerifyEmail.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*AccountResponse, error) {
	var out AccountResponse
	if err := c.postJSON(ctx, "/v1/auth/register", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) VerifyEmail(ctx context.Context, token string) error {
	return c.postJSON(ctx, "/v1/auth/email/verify", VerifyEmailRequest{Token: token}, nil, http.StatusNoContent)
}

// ResendVerification always succeeds for well-formed requests, whether or
// not the email is registered.
func (c *SDKClient) ResendVerification(ctx context.Context, email string) error {
	return c.postJSON(ctx, "/v1/auth/email/resend", EmailRequest{Email: email}, nil, http.StatusAccepted)
}

// Login signs in with email and password. For accounts with a second factor
// it returns a *TwoFactorRequiredError; finish with CompleteLogin.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*Session, error) {
	var out LoginResponse
	if err := c.postJSON(ctx, "/v1/auth/login", LoginRequest{Email: email, Password: password}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return c.sessionFromLogin(&out)
}

// CompleteLogin submits the second-factor code (or a backup code) for a
// pending login challenge.
func (c *SDKClient) CompleteLogin(ctx context.Context, challengeToken, code string) (*Session, error) {
	var out LoginResponse
	req := LoginTwoFactorRequest{ChallengeToken: challengeToken, Code: code}
	if err := c.postJSON(ctx, "/v1/auth/login/2fa", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return c.sessionFromLogin(&out)
}

func (c *SDKClient) sessionFromLogin(out *LoginResponse) (*Session, error) {
	if out.TwoFactorRequired {
		e := &TwoFactorRequiredError{ChallengeToken: out.ChallengeToken, Method: out.Method}
		if out.ChallengeExpiresAt != nil {
			e.ExpiresAt = *out.ChallengeExpiresAt
		}
		return nil, e
	}
	if out.Tokens == nil {
		return nil, ErrServerError
	}
	s := newSession(c, out.Tokens)
	s.account = out.Account
	s.profile = out.Profile
	return s, nil
}

// Refresh exchanges a refresh token for a new token pair. The presented
// refresh token is consumed.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// NewSessionFromTokens resumes a session from stored tokens.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}

// ForgotPassword requests a reset email. It always succeeds for
// well-formed requests.
func (c *SDKClient) ForgotPassword(ctx context.Context, email string) error {
	return c.postJSON(ctx, "/v1/auth/password/forgot", EmailRequest{Email: email}, nil, http.StatusAccepted)
}

func (c *SDKClient) ResetPassword(ctx context.Context, token, newPassword string) error {
	req := ResetPasswordRequest{Token: token, NewPassword: newPassword}
	return c.postJSON(ctx, "/v1/auth/password/reset", req, nil, http.StatusNoContent)
}
