package jwtx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/idx"
	"golang.org/x/time/rate"
)

const (
	DefaultKeyLifetime = 30 * 24 * time.Hour
	DefaultKeyGrace    = 24 * time.Hour

	defaultResyncInterval = 5 * time.Second
	resyncTimeout         = 5 * time.Second
)

// SigningKeyRecord is a stored signing key. It mirrors the domain type so
// jwtx does not depend on the auth packages.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiresAt           time.Time
	ExpiresAt           time.Time
}

// KeyStore is the storage a persistent KeyManager needs.
type KeyStore interface {
	// ListSigningKeys returns keys not yet expired at now.
	ListSigningKeys(ctx context.Context, now time.Time) ([]SigningKeyRecord, error)

	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// PersistentKeyManagerOptions configures a KeyManager backed by a KeyStore.
type PersistentKeyManagerOptions struct {
	Store KeyStore

	// Issuer is the issuer claim (iss) that will be validated in tokens.
	Issuer string

	// Audience is the list of audience values (aud) that will be validated.
	Audience []string

	// NumKeys is the target number of keys able to sign. Defaults to 3,
	// maximum 10.
	NumKeys int

	// Lifetime is how long a new key signs tokens. Defaults to 30 days.
	Lifetime time.Duration

	// Grace is how long a retired key still verifies. It must exceed the
	// access token lifetime. Defaults to 24 hours.
	Grace time.Duration

	// ResyncInterval bounds how often an unknown kid triggers a reload.
	ResyncInterval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

type persistence struct {
	store    KeyStore
	numKeys  int
	lifetime time.Duration
	grace    time.Duration
	now      func() time.Time
	resync   *rate.Limiter

	mu     sync.Mutex
	loaded map[string]Signer // kid -> decrypted signer
}

// NewPersistentKeyManager loads the shared keys, generating and storing new
// ones until NumKeys can sign. Private keys are sealed with the cryptox
// master key, which must be loaded first.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("jwtx: Store is required for persistent key manager")
	}
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	p := &persistence{
		store:    opts.Store,
		numKeys:  min(max(opts.NumKeys, 0), 10),
		lifetime: opts.Lifetime,
		grace:    opts.Grace,
		now:      opts.Now,
		loaded:   make(map[string]Signer),
	}
	if p.numKeys == 0 {
		p.numKeys = 3
	}
	if p.lifetime <= 0 {
		p.lifetime = DefaultKeyLifetime
	}
	if p.grace <= 0 {
		p.grace = DefaultKeyGrace
	}
	if p.now == nil {
		p.now = time.Now
	}
	interval := opts.ResyncInterval
	if interval <= 0 {
		interval = defaultResyncInterval
	}
	p.resync = rate.NewLimiter(rate.Every(interval), 1)

	keyset := NewKeySet()
	km := &KeyManager{KeySet: keyset, persist: p}
	km.Verifier = resyncingVerifier{
		inner: NewCommonEdDSA(keyset, VerifyOptions{Issuer: opts.Issuer, Audience: opts.Audience}),
		km:    km,
	}
	if err := km.Sync(ctx); err != nil {
		return nil, err
	}
	return km, nil
}

// Sync reloads the shared keys: every unexpired key verifies, keys before
// their retirement sign, and new keys are generated when too few can sign.
// It is a no-op for ephemeral managers.
func (km *KeyManager) Sync(ctx context.Context) error {
	p := km.persist
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	records, err := p.store.ListSigningKeys(ctx, now)
	if err != nil {
		return fmt.Errorf("jwtx: load signing keys: %w", err)
	}

	keep := make(map[string]Signer, len(records))
	jwks := make([]JWK, 0, len(records))
	var active []Signer
	for _, rec := range records {
		signer, ok := p.loaded[rec.Kid]
		if !ok {
			if signer, err = signerFromRecord(rec); err != nil {
				return err
			}
		}
		keep[rec.Kid] = signer
		jwks = append(jwks, signer.PublicJWK())
		if now.Before(rec.RetiresAt) {
			active = append(active, signer)
		}
	}

	for len(active) < p.numKeys {
		signer, err := p.generate(ctx, now)
		if err != nil {
			return err
		}
		keep[signer.KID()] = signer
		jwks = append(jwks, signer.PublicJWK())
		active = append(active, signer)
	}

	if err := km.KeySet.Replace(jwks); err != nil {
		return fmt.Errorf("jwtx: publish signing keys: %w", err)
	}
	p.loaded = keep
	km.mu.Lock()
	km.signers = active
	km.mu.Unlock()
	return nil
}

func (p *persistence) generate(ctx context.Context, now time.Time) (Signer, error) {
	kid, err := generateRandomKeyID()
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to generate key ID: %w", err)
	}
	pemData, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to generate EdDSA key: %w", err)
	}
	sealed, err := cryptox.EncryptPrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("jwtx: seal key %s: %w", kid, err)
	}
	signer, err := NewSignerEdDSA(kid, pemData)
	if err != nil {
		return nil, err
	}
	retires := now.Add(p.lifetime)
	err = p.store.CreateSigningKey(ctx, SigningKeyRecord{
		ID:                  idx.New().String(),
		Kid:                 kid,
		Algorithm:           AlgorithmEdDSA,
		PrivateKeyEncrypted: sealed,
		CreatedAt:           now,
		RetiresAt:           retires,
		ExpiresAt:           retires.Add(p.grace),
	})
	if err != nil {
		return nil, fmt.Errorf("jwtx: store key %s: %w", kid, err)
	}
	return signer, nil
}

func signerFromRecord(rec SigningKeyRecord) (Signer, error) {
	if rec.Algorithm != AlgorithmEdDSA {
		return nil, fmt.Errorf("jwtx: key %s: unsupported algorithm %q", rec.Kid, rec.Algorithm)
	}
	pemData, err := cryptox.DecryptPrivateKey(rec.PrivateKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to decrypt key %s: %w", rec.Kid, err)
	}
	return NewSignerEdDSA(rec.Kid, pemData)
}

// resyncingVerifier reloads the shared keys once when a token names a kid
// this instance has not seen, so keys minted by another instance verify.
type resyncingVerifier struct {
	inner Verifier
	km    *KeyManager
}

func (v resyncingVerifier) Verify(token string) (Claims, error) {
	c, err := v.inner.Verify(token)
	if err == nil || !errors.Is(err, ErrNoKey) || !v.km.persist.resync.Allow() {
		return c, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if serr := v.km.Sync(ctx); serr != nil {
		return c, err
	}
	return v.inner.Verify(token)
}
