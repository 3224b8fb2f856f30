package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/idx"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
)

const (
	testIssuer   = "https://auth.proptrust.test"
	testPassword = "Correct-Horse-1"
)

func TestMain(m *testing.M) {
	cryptox.SetPepper("service-test-pepper")
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now().UTC().Truncate(time.Millisecond)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	codes    []domain.OneTimeCode
	alerts   []domain.SecurityAlert
	notices  []domain.AdminNotice
	failCode error
}

func (n *recordingNotifier) SendOneTimeCode(_ context.Context, msg domain.OneTimeCode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failCode != nil {
		return n.failCode
	}
	n.codes = append(n.codes, msg)
	return nil
}

func (n *recordingNotifier) SendSecurityAlert(_ context.Context, _ string, alert domain.SecurityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, notice domain.AdminNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) setFailure(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failCode = err
}

// lastCode returns the most recent delivered value for purpose.
func (n *recordingNotifier) lastCode(t *testing.T, purpose domain.CodePurpose) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.codes) - 1; i >= 0; i-- {
		if n.codes[i].Purpose == purpose {
			return n.codes[i].Code
		}
	}
	t.Fatalf("no %s code delivered", purpose)
	return ""
}

func (n *recordingNotifier) alertCount(action domain.AuditAction) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, a := range n.alerts {
		if a.Action == action {
			count++
		}
	}
	return count
}

type harness struct {
	st       *sqlite.Store
	bl       store.Blacklist
	svc      *Services
	clock    *fakeClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "auth.db") + "?_pragma=busy_timeout(5000)"
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	return newHarnessWith(t, st, sqlite.NewBlacklist(st))
}

func newHarnessWith(t *testing.T, st *sqlite.Store, bl store.Blacklist) *harness {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: testIssuer, NumKeys: 2})
	require.NoError(t, err)

	profiles, err := NewProfileRegistry(DefaultProfileProviders())
	require.NoError(t, err)

	clock := newFakeClock()
	notifier := &recordingNotifier{}
	svc := New(Options{
		Store:      st,
		Blacklist:  bl,
		KeyManager: km,
		Notifier:   notifier,
		Profiles:   profiles,
		Issuer:     testIssuer,
		Clock:      clock.Now,
	})
	return &harness{st: st, bl: bl, svc: svc, clock: clock, notifier: notifier}
}

// activeAccount inserts a verified, active account with testPassword.
func (h *harness) activeAccount(t *testing.T, email string) domain.Account {
	t.Helper()
	ctx := context.Background()
	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	now := h.clock.Now()
	a := domain.Account{
		ID:            idx.New().String(),
		Email:         email,
		Phone:         "+61400000001",
		Role:          domain.RoleInvestor,
		PasswordHash:  hash,
		EmailVerified: true,
		Status:        domain.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, h.st.Accounts().CreateAccount(ctx, a))
	require.NoError(t, h.st.PasswordHistory().AddEntry(ctx, domain.PasswordHistoryEntry{
		ID:           idx.New().String(),
		AccountID:    a.ID,
		PasswordHash: hash,
		Reason:       domain.PasswordReasonInitial,
		ChangedBy:    a.ID,
		CreatedAt:    now,
	}))
	return a
}

func (h *harness) reload(t *testing.T, id string) domain.Account {
	t.Helper()
	a, err := h.st.Accounts().GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (h *harness) login(t *testing.T, email string) LoginResult {
	t.Helper()
	res, err := h.svc.Auth.Login(context.Background(), email, testPassword, testClient)
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	return res
}

func (h *harness) auditActions(t *testing.T, accountID string) []domain.AuditAction {
	t.Helper()
	events, err := h.st.AuditEvents().ListAccountEvents(context.Background(), accountID, time.Time{}, 500)
	require.NoError(t, err)
	out := make([]domain.AuditAction, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

var testClient = domain.ClientInfo{IP: "203.0.113.7", UserAgent: "proptrust-test/1.0", Country: "AU"}

var errDeliveryDown = errors.New("smtp relay unreachable")
