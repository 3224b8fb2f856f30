package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store/drivers/redisstore"
)

func TestLedger_ResetTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "reset@example.com")

	token, rec, err := h.svc.Ledger.Issue(ctx, a.ID, domain.TokenPasswordReset, time.Hour, domain.TokenMetadata{})
	require.NoError(t, err)
	require.NotEqual(t, token, rec.TokenHash, "plaintext must never be stored")

	got, err := h.svc.Ledger.Redeem(ctx, domain.TokenPasswordReset, token)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.AccountID)

	_, err = h.svc.Ledger.Redeem(ctx, domain.TokenPasswordReset, token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestLedger_RedeemWrongTypeOrExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "types@example.com")

	token, _, err := h.svc.Ledger.Issue(ctx, a.ID, domain.TokenEmailVerification, time.Minute, domain.TokenMetadata{})
	require.NoError(t, err)

	_, err = h.svc.Ledger.Redeem(ctx, domain.TokenPasswordReset, token)
	require.ErrorIs(t, err, ErrTokenNotFound)

	h.clock.Advance(2 * time.Minute)
	_, err = h.svc.Ledger.Redeem(ctx, domain.TokenEmailVerification, token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestLedger_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "race@example.com")

	code, _, err := h.svc.Ledger.IssueCode(ctx, a.ID, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, code, 6)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := h.svc.Ledger.RedeemCode(ctx, a.ID, code)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestLedger_IssueCodeReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "replace@example.com")

	first, _, err := h.svc.Ledger.IssueCode(ctx, a.ID, 10*time.Minute)
	require.NoError(t, err)
	second, _, err := h.svc.Ledger.IssueCode(ctx, a.ID, 10*time.Minute)
	require.NoError(t, err)

	if first != second {
		ok, err := h.svc.Ledger.RedeemCode(ctx, a.ID, first)
		require.NoError(t, err)
		require.False(t, ok)
	}
	ok, err := h.svc.Ledger.RedeemCode(ctx, a.ID, second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRefresh_RotatesOnEveryUse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "rotate@example.com")
	res := h.login(t, a.Email)

	pair, err := h.svc.Auth.Refresh(ctx, res.Tokens.RefreshToken, testClient)
	require.NoError(t, err)
	require.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)
	require.Equal(t, res.Tokens.SessionID, pair.SessionID)

	_, err = h.svc.Auth.Refresh(ctx, res.Tokens.RefreshToken, testClient)
	require.ErrorIs(t, err, ErrTokenNotFound)

	auth, err := h.svc.Auth.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, a.ID, auth.AccountID)
	require.Equal(t, res.Tokens.SessionID, auth.SessionID)
}

func TestRefresh_ConcurrentUseRotatesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "double-refresh@example.com")
	res := h.login(t, a.Email)

	var (
		wg     sync.WaitGroup
		wins   atomic.Int32
		mu     sync.Mutex
		others []error
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Auth.Refresh(ctx, res.Tokens.RefreshToken, testClient)
			if err == nil {
				wins.Add(1)
				return
			}
			mu.Lock()
			others = append(others, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Len(t, others, 7)
	for _, err := range others {
		require.ErrorIs(t, err, ErrTokenNotFound)
	}
}

func TestRefresh_SuspendedAccountKeepsToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "suspended-refresh@example.com")
	res := h.login(t, a.Email)

	require.NoError(t, h.st.Accounts().UpdateStatus(ctx, a.ID, domain.StatusSuspended, h.clock.Now()))
	_, err := h.svc.Auth.Refresh(ctx, res.Tokens.RefreshToken, testClient)
	require.ErrorIs(t, err, ErrAccountSuspended)

	require.NoError(t, h.st.Accounts().UpdateStatus(ctx, a.ID, domain.StatusActive, h.clock.Now()))
	_, err = h.svc.Auth.Refresh(ctx, res.Tokens.RefreshToken, testClient)
	require.NoError(t, err)
}

func TestRevokeAll_InvalidatesRefreshAndAccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "everywhere@example.com")

	first := h.login(t, a.Email)
	second := h.login(t, a.Email)

	n, err := h.svc.Sessions.RevokeAll(ctx, a.ID, domain.ReasonAllSessionsRevoked, "", a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, res := range []LoginResult{first, second} {
		_, err := h.svc.Auth.Refresh(ctx, res.Tokens.RefreshToken, testClient)
		require.ErrorIs(t, err, ErrTokenNotFound)

		revoked, err := h.svc.Ledger.IsBlacklisted(ctx, res.Tokens.AccessToken)
		require.NoError(t, err)
		require.True(t, revoked)

		_, err = h.svc.Auth.Authenticate(ctx, res.Tokens.AccessToken)
		require.Equal(t, KindInvalidToken, KindOf(err))
	}
	require.Contains(t, h.auditActions(t, a.ID), domain.ActionSessionsRevoked)
}

func TestLogoutAll_KeepsCurrentSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "keep@example.com")

	current := h.login(t, a.Email)
	other := h.login(t, a.Email)

	auth, err := h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)

	n, err := h.svc.Auth.LogoutAll(ctx, auth, true)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)
	_, err = h.svc.Auth.Authenticate(ctx, other.Tokens.AccessToken)
	require.Error(t, err)

	sessions, err := h.svc.Sessions.List(ctx, a.ID, auth.SessionID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Current)
}

func TestLogout_BlacklistsPresentedToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "logout@example.com")
	res := h.login(t, a.Email)

	auth, err := h.svc.Auth.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	require.NoError(t, h.svc.Auth.Logout(ctx, auth, testClient))
	require.NoError(t, h.svc.Auth.Logout(ctx, auth, testClient), "logout is idempotent")

	_, err = h.svc.Auth.Authenticate(ctx, res.Tokens.AccessToken)
	require.Equal(t, KindInvalidToken, KindOf(err))
	_, err = h.svc.Auth.Refresh(ctx, res.Tokens.RefreshToken, testClient)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRevokeAll_RedisBlacklist(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	base := newHarness(t)
	h := newHarnessWith(t, base.st, redisstore.NewBlacklist(rdb, ""))
	a := h.activeAccount(t, "redis@example.com")
	res := h.login(t, a.Email)

	_, err := h.svc.Auth.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)

	_, err = h.svc.Sessions.RevokeAll(ctx, a.ID, domain.ReasonSuspiciousActivity, "", "")
	require.NoError(t, err)

	_, err = h.svc.Auth.Authenticate(ctx, res.Tokens.AccessToken)
	require.Equal(t, KindInvalidToken, KindOf(err))
	require.NotEmpty(t, mr.Keys())
}

func TestRevokeSession_ByID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "byid@example.com")
	current := h.login(t, a.Email)
	other := h.login(t, a.Email)

	auth, err := h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, h.svc.Auth.RevokeSession(ctx, auth, other.Tokens.SessionID, testClient))
	require.ErrorIs(t, h.svc.Auth.RevokeSession(ctx, auth, other.Tokens.SessionID, testClient), ErrNotFound)

	_, err = h.svc.Auth.Authenticate(ctx, other.Tokens.AccessToken)
	require.Equal(t, KindInvalidToken, KindOf(err))
	_, err = h.svc.Auth.Authenticate(ctx, current.Tokens.AccessToken)
	require.NoError(t, err)

	// Another account's session id is not found for this caller.
	b := h.activeAccount(t, "stranger@example.com")
	theirs := h.login(t, b.Email)
	require.ErrorIs(t, h.svc.Auth.RevokeSession(ctx, auth, theirs.Tokens.SessionID, testClient), ErrNotFound)
}
