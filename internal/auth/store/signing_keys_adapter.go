package store

import (
	"context"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
)

// KeyStoreAdapter exposes SigningKeys as a jwtx.KeyStore.
type KeyStoreAdapter struct {
	store Store
}

func NewKeyStoreAdapter(s Store) *KeyStoreAdapter {
	return &KeyStoreAdapter{store: s}
}

func (a *KeyStoreAdapter) ListSigningKeys(ctx context.Context, now time.Time) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.store.SigningKeys().ListSigningKeys(ctx, now)
	if err != nil {
		return nil, err
	}
	records := make([]jwtx.SigningKeyRecord, len(keys))
	for i, k := range keys {
		records[i] = jwtx.SigningKeyRecord{
			ID:                  k.ID,
			Kid:                 k.Kid,
			Algorithm:           k.Algorithm,
			PrivateKeyEncrypted: k.PrivateKeyEncrypted,
			CreatedAt:           k.CreatedAt,
			RetiresAt:           k.RetiresAt,
			ExpiresAt:           k.ExpiresAt,
		}
	}
	return records, nil
}

func (a *KeyStoreAdapter) CreateSigningKey(ctx context.Context, r jwtx.SigningKeyRecord) error {
	return a.store.SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
		ID:                  r.ID,
		Kid:                 r.Kid,
		Algorithm:           r.Algorithm,
		PrivateKeyEncrypted: r.PrivateKeyEncrypted,
		CreatedAt:           r.CreatedAt,
		RetiresAt:           r.RetiresAt,
		ExpiresAt:           r.ExpiresAt,
	})
}
