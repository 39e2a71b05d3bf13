package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busview.transitireland.org/internal/appconf"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, appconf.Development, cfg.Env)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "busview.db", cfg.DBPath)
	assert.Equal(t, "secret", cfg.LiveFeedKey)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.RetryDelay)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "Europe/Dublin", cfg.Location.String())
	assert.False(t, cfg.LowMemory)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "8080")
	t.Setenv("POLL_INTERVAL_SEC", "15")
	t.Setenv("RETRY_DELAY_SEC", "5")
	t.Setenv("MAX_RETRIES", "3")
	t.Setenv("AREA_TIMEZONE", "UTC")
	t.Setenv("LOW_MEMORY", "true")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, appconf.Production, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.True(t, cfg.LowMemory)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_RejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("API_KEY", "secret")

	for _, key := range []string{"PORT", "POLL_INTERVAL_SEC", "RETRY_DELAY_SEC", "MAX_RETRIES", "FETCH_TIMEOUT_SEC"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "0")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_RejectsUnknownTimezone(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("AREA_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AREA_TIMEZONE")
}

func TestLoad_TestEnvForcesMemoryDatabase(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("ENV", "test")
	t.Setenv("DB_PATH", "/var/lib/busview.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DBPath)
}
