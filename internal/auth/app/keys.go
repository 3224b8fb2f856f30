package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
)

// InitAuthKeys loads the EdDSA signing keys shared through the database,
// generating them on first start. Private keys are sealed with the master
// key, so every instance needs the same AUTH_MASTER_KEY_FILE.
func InitAuthKeys(ctx context.Context, cfg Config, db store.Store, logger *slog.Logger) (*jwtx.KeyManager, error) {
	if err := cryptox.LoadMasterKey(cfg.MasterKeyFile); err != nil {
		return nil, err
	}

	// Retired keys must outlive every token they signed, plus one
	// housekeeping pass that may be late to notice the retirement.
	grace := max(cfg.AccessTTL+cfg.HousekeepingInterval, jwtx.DefaultKeyGrace)

	keyManager, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
		Store:    store.NewKeyStoreAdapter(db),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		NumKeys:  cfg.NumKeys,
		Lifetime: cfg.KeyLifetime,
		Grace:    grace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	logger.Info("loaded signing keys",
		"algorithm", jwtx.AlgorithmEdDSA,
		"num_keys", keyManager.NumSigners(),
		"published", len(keyManager.KeySet.PublicJWKS().Keys),
		"issuer", cfg.Issuer,
	)
	return keyManager, nil
}
