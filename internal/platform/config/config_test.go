package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("development defaults", func(t *testing.T) {
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 5*time.Minute, cfg.Auth.CodeTTL)
		assert.Empty(t, cfg.Database.DSN)
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.Equal(t, 5, cfg.Auth.LockoutAttempts)
		assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
		assert.Equal(t, 3*time.Second, cfg.Kafka.ProduceTimeout)
		assert.Empty(t, cfg.HTTP.TrustedProxies)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("BENEFITS_ADDR", ":9090")
		t.Setenv("BENEFITS_DATABASE_DSN", "postgres://portal@localhost/portal")
		t.Setenv("BENEFITS_KAFKA_BROKERS", "k1:9092,k2:9092")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, "postgres://portal@localhost/portal", cfg.Database.DSN)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	})

	t.Run("trusted proxies", func(t *testing.T) {
		t.Setenv("BENEFITS_HTTP_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.HTTP.TrustedProxies)

		t.Setenv("BENEFITS_HTTP_TRUSTED_PROXIES", "10.0.0.0/40")
		_, err = FromEnv()
		require.Error(t, err)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "portal.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nauth:\n  token_ttl: 1h\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	})

	t.Run("lockout needs a window", func(t *testing.T) {
		t.Setenv("BENEFITS_AUTH_LOCKOUT_WINDOW", "0s")
		_, err := FromEnv()
		require.Error(t, err)

		t.Setenv("BENEFITS_AUTH_LOCKOUT_ATTEMPTS", "0")
		_, err = FromEnv()
		require.NoError(t, err)
	})

	t.Run("production refuses development secrets", func(t *testing.T) {
		t.Setenv("BENEFITS_ENVIRONMENT", "production")
		_, err := FromEnv()
		require.Error(t, err)

		t.Setenv("BENEFITS_AUTH_JWT_SIGNING_KEY", "a-real-secret")
		t.Setenv("BENEFITS_AUTH_DEV_LOGIN_CODE", "123456")
		_, err = FromEnv()
		require.Error(t, err)
	})
}
