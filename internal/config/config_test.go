package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("RESERVED_CODES", "shorturls,health,metrics,r,stats")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 6, cfg.App.ShortCodeLen)
		assert.Equal(t, 1, cfg.App.ShortCodeAttempts)
		assert.Equal(t, 30*time.Minute, cfg.App.DefaultValidity)
		assert.Equal(t, []string{"shorturls", "health", "metrics", "r", "stats"}, cfg.App.ReservedCodes)
		assert.Equal(t, "shortlink.clicks", cfg.Broker.Exchange)
	})

	t.Run("overrides from environment", func(t *testing.T) {
		t.Setenv("BASE_URL", "https://sho.rt/")
		t.Setenv("DB_TIMEOUT", "750ms")
		t.Setenv("SHORT_CODE_MAX_ATTEMPTS", "4")
		t.Setenv("DEFAULT_VALIDITY_MINUTES", "90")
		t.Setenv("RESERVED_CODES", " admin , ,api")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "https://sho.rt", cfg.App.BaseURL)
		assert.Equal(t, 750*time.Millisecond, cfg.Database.Timeout)
		assert.Equal(t, 4, cfg.App.ShortCodeAttempts)
		assert.Equal(t, 90*time.Minute, cfg.App.DefaultValidity)
		assert.Equal(t, []string{"admin", "api"}, cfg.App.ReservedCodes)
	})

	t.Run("malformed numbers fall back to defaults", func(t *testing.T) {
		t.Setenv("SHORT_CODE_LENGTH", "six")
		t.Setenv("CACHE_TTL", "soon")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 6, cfg.App.ShortCodeLen)
		assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	})

	t.Run("rejects non-positive code length", func(t *testing.T) {
		t.Setenv("SHORT_CODE_LENGTH", "0")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("empty cache host disables cache", func(t *testing.T) {
		t.Setenv("RDB_HOST", "")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.Cache.Enabled())
	})
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "links", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/links?sslmode=disable", d.ConnectionString())
}
