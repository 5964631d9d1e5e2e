package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SPOTFI_HTTP_ADDR", "SPOTFI_STORE_DSN", "SPOTFI_MIGRATIONS_DIR", "SPOTFI_REDIS_ADDR",
		"SPOTFI_REDIS_PASSWORD", "SPOTFI_REDIS_DB", "SPOTFI_BROKER_URL",
		"SPOTFI_BROKER_USERNAME", "SPOTFI_BROKER_PASSWORD", "SPOTFI_RADIUS_ADDR",
		"SPOTFI_DEFAULT_REDIRECT_URL",
		"SPOTFI_ALLOWED_REDIRECT_DOMAINS", "SPOTFI_ALLOW_IPV6",
		"SPOTFI_QSE_POLL_FALLBACK_ENABLED", "SPOTFI_QSE_POLL_INTERVAL",
		"SPOTFI_DISCONNECT_WORKER_CONCURRENCY", "SPOTFI_RECONCILER_CONCURRENCY",
	} {
		os.Unsetenv(k)
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	os.Setenv("SPOTFI_STORE_DSN", "postgres://localhost/spotfi")
	os.Setenv("SPOTFI_BROKER_URL", "tcp://localhost:1883")
}

func TestFromEnv_MissingStoreDSN(t *testing.T) {
	clearEnv(t)
	os.Setenv("SPOTFI_BROKER_URL", "tcp://localhost:1883")
	defer clearEnv(t)

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPOTFI_STORE_DSN")
}

func TestFromEnv_MissingBrokerURL(t *testing.T) {
	clearEnv(t)
	os.Setenv("SPOTFI_STORE_DSN", "postgres://localhost/spotfi")
	defer clearEnv(t)

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPOTFI_BROKER_URL")
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	defer clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "localhost:1812", cfg.RadiusAddr)
	assert.False(t, cfg.AllowIPv6)
	assert.False(t, cfg.QSEPollFallbackEnabled)
	assert.Equal(t, 10*time.Second, cfg.QSEPollInterval)
	assert.Equal(t, 20, cfg.DisconnectWorkerConcurrency)
	assert.Equal(t, 5, cfg.ReconcilerConcurrency)
	assert.Empty(t, cfg.AllowedRedirectDomains)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	os.Setenv("SPOTFI_HTTP_ADDR", ":9090")
	os.Setenv("SPOTFI_REDIS_DB", "3")
	os.Setenv("SPOTFI_ALLOWED_REDIRECT_DOMAINS", "example.org, portal.example.net ,")
	os.Setenv("SPOTFI_ALLOW_IPV6", "true")
	os.Setenv("SPOTFI_QSE_POLL_FALLBACK_ENABLED", "true")
	os.Setenv("SPOTFI_QSE_POLL_INTERVAL", "30s")
	os.Setenv("SPOTFI_DISCONNECT_WORKER_CONCURRENCY", "50")
	defer clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"example.org", "portal.example.net"}, cfg.AllowedRedirectDomains)
	assert.True(t, cfg.AllowIPv6)
	assert.True(t, cfg.QSEPollFallbackEnabled)
	assert.Equal(t, 30*time.Second, cfg.QSEPollInterval)
	assert.Equal(t, 50, cfg.DisconnectWorkerConcurrency)
}

func TestFromEnv_InvalidDuration(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	os.Setenv("SPOTFI_QSE_POLL_INTERVAL", "not-a-duration")
	defer clearEnv(t)

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPOTFI_QSE_POLL_INTERVAL")
}

func TestFromEnv_InvalidBool(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	os.Setenv("SPOTFI_ALLOW_IPV6", "maybe")
	defer clearEnv(t)

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPOTFI_ALLOW_IPV6")
}
