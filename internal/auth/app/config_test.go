package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()
	require.Equal(t, "proptrust-auth", cfg.Issuer)
	require.Equal(t, 5, cfg.LockoutThreshold)
	require.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, "master.key", cfg.MasterKeyFile)
	require.Equal(t, 30*24*time.Hour, cfg.KeyLifetime)
	require.Empty(t, cfg.RedisURL)
	require.Nil(t, cfg.Audience)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "https://auth.proptrust.test")
	t.Setenv("AUTH_AUDIENCE", "listings, payments,,")
	t.Setenv("AUTH_LOCKOUT_DURATION", "45")
	t.Setenv("AUTH_BLACKLIST_GRACE", "90s")
	t.Setenv("PORT", "not-a-number")

	cfg := LoadConfig()
	require.Equal(t, "https://auth.proptrust.test", cfg.Issuer)
	require.Equal(t, []string{"listings", "payments"}, cfg.Audience)
	require.Equal(t, 45*time.Minute, cfg.LockoutDuration)
	require.Equal(t, 90*time.Second, cfg.BlacklistGrace)
	require.Equal(t, 8080, cfg.Port)
}
