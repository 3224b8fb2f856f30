package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/notify"
)

type Config struct {
	Issuer   string   // Required: issuer claim for tokens
	Audience []string // Optional: audience claim, comma separated in AUTH_AUDIENCE

	NumKeys      int    // Optional: number of signing keys to generate (default: 3, min: 1, max: 10)
	DatabaseFile string // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	MasterKeyFile string        // Optional: file sealing the stored signing keys; shared by every instance (default: ./master.key)
	KeyLifetime   time.Duration // How long a signing key signs before retiring (default: 30 days)

	RedisURL       string // Optional: redis:// URL for the blacklist; empty keeps it in SQLite
	AMQPURL        string // Optional: amqp:// URL for notifications; empty logs them instead
	NotifyExchange string // Optional: topic exchange for notifications

	AccessTTL        time.Duration // Access token lifetime (default: 15m)
	RefreshTTL       time.Duration // Refresh token lifetime (default: 30 days)
	LockoutThreshold int           // Failed logins before a lock (default: 5)
	LockoutDuration  time.Duration // Lock length (default: 30m)
	BlacklistGrace   time.Duration // Extra blacklist retention past token expiry (default: 5m)
	SuspiciousWindow time.Duration // Lookback for suspicious login detection (default: 1h)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "proptrust-auth"),
		Audience:       splitList(os.Getenv("AUTH_AUDIENCE")),
		NumKeys:        getEnvIntOrDefault("AUTH_NUM_KEYS", 3),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:     getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		MasterKeyFile:  getEnvOrDefault("AUTH_MASTER_KEY_FILE", "master.key"),
		KeyLifetime:    getEnvDurationOrDefault("AUTH_KEY_LIFETIME", 30*24*time.Hour),
		RedisURL:       os.Getenv("AUTH_REDIS_URL"),
		AMQPURL:        os.Getenv("AUTH_AMQP_URL"),
		NotifyExchange: getEnvOrDefault("AUTH_NOTIFY_EXCHANGE", notify.DefaultExchange),

		AccessTTL:        getEnvDurationOrDefault("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:       getEnvDurationOrDefault("AUTH_REFRESH_TTL", 30*24*time.Hour),
		LockoutThreshold: getEnvIntOrDefault("AUTH_LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", 30*time.Minute),
		BlacklistGrace:   getEnvDurationOrDefault("AUTH_BLACKLIST_GRACE", 5*time.Minute),
		SuspiciousWindow: getEnvDurationOrDefault("AUTH_SUSPICIOUS_WINDOW", time.Hour),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
