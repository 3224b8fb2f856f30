package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// refreshSkew refreshes access tokens slightly before they expire.
const refreshSkew = 30 * time.Second

// Session is a signed-in account with automatic token refresh. Refresh
// tokens rotate on every use, so a Session must not be shared with another
// process holding the same refresh token.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	sessionID    string
	expiresAt    time.Time

	account *AccountResponse
	profile *ProfileResponse
}

func newSession(client *SDKClient, tok *TokenResponse) *Session {
	s := &Session{client: client}
	s.update(tok)
	return s
}

// update stores a token response. Callers hold mu or own s exclusively.
func (s *Session) update(tok *TokenResponse) {
	s.accessToken = tok.AccessToken
	s.refreshToken = tok.RefreshToken
	if tok.SessionID != "" {
		s.sessionID = tok.SessionID
	}
	s.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - refreshSkew)
}

// getValidToken returns a valid access token, refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tok, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.update(tok)
	return s.accessToken, nil
}

// Refresh rotates the tokens now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	s.update(tok)
	return nil
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Account is the account returned at login, or nil for resumed sessions.
func (s *Session) Account() *AccountResponse { return s.account }

// Profile is the role profile returned at login, or nil for resumed sessions.
func (s *Session) Profile() *ProfileResponse { return s.profile }

// Me fetches the current account and profile.
func (s *Session) Me(ctx context.Context) (*MeResponse, error) {
	var out MeResponse
	if err := s.call(ctx, http.MethodGet, "/v1/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends this session. The access token stops working immediately.
func (s *Session) Logout(ctx context.Context) error {
	return s.call(ctx, http.MethodPost, "/v1/auth/logout", nil, nil, http.StatusNoContent)
}

// LogoutAll revokes every session of the account and returns how many were
// revoked.
func (s *Session) LogoutAll(ctx context.Context, keepCurrent bool) (int, error) {
	var out RevokedResponse
	if err := s.call(ctx, http.MethodPost, "/v1/auth/logout-all", LogoutAllRequest{KeepCurrent: keepCurrent}, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// ChangePassword keeps this session signed in and revokes all others.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	req := ChangePasswordRequest{CurrentPassword: current, NewPassword: next}
	return s.call(ctx, http.MethodPost, "/v1/auth/password/change", req, nil, http.StatusNoContent)
}

func (s *Session) ListSessions(ctx context.Context) ([]SessionResponse, error) {
	var out SessionsResponse
	if err := s.call(ctx, http.MethodGet, "/v1/sessions", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (s *Session) RevokeSession(ctx context.Context, sessionID string) error {
	return s.call(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(sessionID), nil, nil, http.StatusNoContent)
}

// AuditLog lists the caller's own security events, newest first.
func (s *Session) AuditLog(ctx context.Context, since time.Time, limit int) ([]AuditEventResponse, error) {
	var out AuditEventsResponse
	if err := s.call(ctx, http.MethodGet, "/v1/audit"+auditQuery(since, limit), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func auditQuery(since time.Time, limit int) string {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
