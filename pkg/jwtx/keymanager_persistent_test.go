package jwtx_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
)

type memKeyStore struct {
	mu   sync.Mutex
	keys []jwtx.SigningKeyRecord
}

func (s *memKeyStore) ListSigningKeys(_ context.Context, now time.Time) ([]jwtx.SigningKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []jwtx.SigningKeyRecord
	for _, k := range s.keys {
		if k.ExpiresAt.After(now) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *memKeyStore) CreateSigningKey(_ context.Context, k jwtx.SigningKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.Kid == k.Kid {
			return errors.New("duplicate kid")
		}
	}
	s.keys = append(s.keys, k)
	return nil
}

func (s *memKeyStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func persistentManager(t *testing.T, ks jwtx.KeyStore, clock *stepClock) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewPersistentKeyManager(context.Background(), jwtx.PersistentKeyManagerOptions{
		Store:          ks,
		Issuer:         "test-issuer",
		NumKeys:        2,
		Lifetime:       time.Hour,
		Grace:          30 * time.Minute,
		ResyncInterval: time.Nanosecond,
		Now:            clock.Now,
	})
	require.NoError(t, err)
	return km
}

func signFor(t *testing.T, km *jwtx.KeyManager, sub string) string {
	t.Helper()
	claims := jwtx.NewAccessClaims(sub, "sid-1", "investor", nil, time.Minute, "test-issuer", nil, time.Now())
	token, err := km.GetSigner().Sign(claims)
	require.NoError(t, err)
	return token
}

func TestPersistentKeyManager_SharesKeys(t *testing.T) {
	cryptox.SetMasterKey([]byte("jwtx-test-master"))
	ks := &memKeyStore{}
	clock := &stepClock{t: time.Now()}

	a := persistentManager(t, ks, clock)
	require.Equal(t, 2, a.NumSigners())
	require.Equal(t, 2, ks.len())

	b := persistentManager(t, ks, clock)
	require.Equal(t, 2, ks.len(), "second instance must reuse stored keys")

	parsed, err := b.Verifier.Verify(signFor(t, a, "acc-1"))
	require.NoError(t, err)
	require.Equal(t, "acc-1", parsed.Subject)
}

func TestPersistentKeyManager_RotatesAndResyncs(t *testing.T) {
	cryptox.SetMasterKey([]byte("jwtx-test-master"))
	ks := &memKeyStore{}
	clock := &stepClock{t: time.Now()}

	a := persistentManager(t, ks, clock)
	b := persistentManager(t, ks, clock)
	old := signFor(t, a, "acc-old")

	// Past retirement a sync mints replacements; the old keys still verify.
	clock.Advance(time.Hour + time.Minute)
	require.NoError(t, a.Sync(context.Background()))
	require.Equal(t, 4, ks.len())
	require.Len(t, a.KeySet.PublicJWKS().Keys, 4)

	_, err := a.Verifier.Verify(old)
	require.NoError(t, err)

	// b has not synced yet; an unknown kid triggers a reload.
	fresh := signFor(t, a, "acc-new")
	parsed, err := b.Verifier.Verify(fresh)
	require.NoError(t, err)
	require.Equal(t, "acc-new", parsed.Subject)

	// Past the grace window the retired keys are dropped.
	clock.Advance(31 * time.Minute)
	require.NoError(t, a.Sync(context.Background()))
	require.Len(t, a.KeySet.PublicJWKS().Keys, 2)
	_, err = a.Verifier.Verify(old)
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}

func TestPersistentKeyManager_WrongMasterKey(t *testing.T) {
	ks := &memKeyStore{}
	clock := &stepClock{t: time.Now()}

	cryptox.SetMasterKey([]byte("one"))
	persistentManager(t, ks, clock)

	cryptox.SetMasterKey([]byte("two"))
	_, err := jwtx.NewPersistentKeyManager(context.Background(), jwtx.PersistentKeyManagerOptions{
		Store: ks, Issuer: "test-issuer", Now: clock.Now,
	})
	require.Error(t, err)
}

func TestNewPersistentKeyManager_Validates(t *testing.T) {
	_, err := jwtx.NewPersistentKeyManager(context.Background(), jwtx.PersistentKeyManagerOptions{Issuer: "i"})
	require.Error(t, err)
	_, err = jwtx.NewPersistentKeyManager(context.Background(), jwtx.PersistentKeyManagerOptions{Store: &memKeyStore{}})
	require.Error(t, err)
}

func TestEphemeralKeyManager_SyncIsNoop(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "i", NumKeys: 1})
	require.NoError(t, err)
	require.NoError(t, km.Sync(context.Background()))
	require.Equal(t, 1, km.NumSigners())
}
