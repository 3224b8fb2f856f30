package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
)

func TestLogin_FiveFailuresLockForThirtyMinutes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "locked@example.com")
	start := h.clock.Now()

	for i := 1; i <= 4; i++ {
		_, err := h.svc.Auth.Login(ctx, a.Email, "Wrong-Password-1", testClient)
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}
	require.Nil(t, h.reload(t, a.ID).LockedUntil)

	_, err := h.svc.Auth.Login(ctx, a.Email, "Wrong-Password-1", testClient)
	require.ErrorIs(t, err, ErrAccountLocked)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	require.Equal(t, 30*time.Minute, svcErr.RetryAfter)

	locked := h.reload(t, a.ID)
	require.NotNil(t, locked.LockedUntil)
	require.Equal(t, start.Add(30*time.Minute).UnixMilli(), locked.LockedUntil.UnixMilli())
	require.Equal(t, 5, locked.FailedLoginCount)

	require.Contains(t, h.auditActions(t, a.ID), domain.ActionAccountLocked)
	require.Equal(t, 1, h.notifier.alertCount(domain.ActionAccountLocked))

	t.Run("correct password during lock is rejected without extending it", func(t *testing.T) {
		h.clock.Advance(10 * time.Minute)
		_, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
		require.ErrorIs(t, err, ErrAccountLocked)

		_, err = h.svc.Auth.Login(ctx, a.Email, "Wrong-Password-1", testClient)
		require.ErrorIs(t, err, ErrAccountLocked)

		still := h.reload(t, a.ID)
		require.Equal(t, locked.LockedUntil.UnixMilli(), still.LockedUntil.UnixMilli())
		require.Equal(t, 5, still.FailedLoginCount)
	})

	t.Run("login succeeds after the lock expires and resets state", func(t *testing.T) {
		h.clock.Advance(20*time.Minute + time.Second)
		res, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
		require.NoError(t, err)
		require.NotNil(t, res.Tokens)

		after := h.reload(t, a.ID)
		require.Zero(t, after.FailedLoginCount)
		require.Nil(t, after.LockedUntil)
	})
}

func TestLogin_ConcurrentFailuresLockOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "stampede@example.com")

	var wg sync.WaitGroup
	for range DefaultLockoutThreshold + 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Auth.Login(ctx, a.Email, "Wrong-Password-1", testClient)
			if err == nil {
				t.Error("wrong password accepted")
			}
		}()
	}
	wg.Wait()

	locked := h.reload(t, a.ID)
	require.NotNil(t, locked.LockedUntil)
	require.GreaterOrEqual(t, locked.FailedLoginCount, DefaultLockoutThreshold)

	var lockEvents int
	for _, action := range h.auditActions(t, a.ID) {
		if action == domain.ActionAccountLocked {
			lockEvents++
		}
	}
	require.Equal(t, 1, lockEvents)
	require.Equal(t, 1, h.notifier.alertCount(domain.ActionAccountLocked))
}

func TestLogin_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "a1@example.com")

	for range 4 {
		_, err := h.svc.Auth.Login(ctx, a.Email, "Nope-Nope-1", testClient)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	require.Equal(t, 4, h.reload(t, a.ID).FailedLoginCount)

	h.login(t, a.Email)

	after := h.reload(t, a.ID)
	require.Zero(t, after.FailedLoginCount)
	require.Nil(t, after.LockedUntil)
}

func TestLogin_ExpiredLockRestartsCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.activeAccount(t, "restart@example.com")

	for range 5 {
		_, _ = h.svc.Auth.Login(ctx, a.Email, "Nope-Nope-1", testClient)
	}
	require.NotNil(t, h.reload(t, a.ID).LockedUntil)

	h.clock.Advance(31 * time.Minute)
	_, err := h.svc.Auth.Login(ctx, a.Email, "Nope-Nope-1", testClient)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	after := h.reload(t, a.ID)
	require.Equal(t, 1, after.FailedLoginCount)
	require.Nil(t, after.LockedUntil)
}

func TestLogin_UnknownEmailIsInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Auth.Login(context.Background(), "ghost@example.com", testPassword, testClient)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, KindInvalidCredentials, KindOf(err))
}

func TestLogin_StatusChecks(t *testing.T) {
	cases := []struct {
		status domain.AccountStatus
		want   error
	}{
		{domain.StatusPendingActivation, ErrAccountNotActivated},
		{domain.StatusSuspended, ErrAccountSuspended},
		{domain.StatusDeleted, ErrAccountDeleted},
		{domain.StatusPendingDeletion, nil},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			a := h.activeAccount(t, "status@example.com")
			require.NoError(t, h.st.Accounts().UpdateStatus(ctx, a.ID, tc.status, h.clock.Now()))

			_, err := h.svc.Auth.Login(ctx, a.Email, testPassword, testClient)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}
