package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	// Limiter defaults.
	assert.True(t, cfg.RateLimit.IsEnabled())
	assert.Equal(t, 2, cfg.RateLimit.PerIdentityRequests)
	assert.Equal(t, 60, cfg.RateLimit.PerIdentityWindow)
	assert.Equal(t, 10, cfg.RateLimit.GlobalRequests)
	assert.Equal(t, 60, cfg.RateLimit.GlobalWindow)
	assert.Equal(t, 15, cfg.RateLimit.MinInterval)
	assert.Equal(t, 30, cfg.RateLimit.DuplicateCacheTTL)

	assert.Equal(t, 15, cfg.Session.IdleTimeoutMinutes)
	assert.InDelta(t, 0.01, cfg.Session.CleanupProbability, 1e-9)
	assert.Equal(t, "tenselens_session", cfg.Session.CookieName)

	assert.Equal(t, 500, cfg.Validation.MaxTokens)
	assert.InDelta(t, 0.8, cfg.Validation.MinThaiPercentage, 1e-9)
	assert.True(t, cfg.Validation.IsProfanityFilterEnabled())
	assert.True(t, cfg.Observability.IsMetricsEnabled())
}

func TestLoadFromFileWithEnvExpansion(t *testing.T) {
	t.Setenv("TL_TEST_PORT", "9090")
	t.Setenv("TL_TEST_DB", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: ${TL_TEST_PORT}
database:
  driver: sqlite
  database: ${TL_TEST_DB:-/tmp/test.db}
rate_limit:
  per_identity_requests: 5
session:
  idle_timeout_minutes: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Database)
	assert.Equal(t, 5, cfg.RateLimit.PerIdentityRequests)
	assert.Equal(t, 60, cfg.RateLimit.PerIdentityWindow, "unset fields keep defaults")
	assert.Equal(t, 30, cfg.Session.IdleTimeoutMinutes)
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestDatabaseDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DatabaseConfig
		dialect string
		driver  string
	}{
		{
			name:    "sqlite_default",
			cfg:     DatabaseConfig{Driver: "sqlite"},
			dialect: "sqlite",
			driver:  "sqlite3",
		},
		{
			name:    "postgres",
			cfg:     DatabaseConfig{Driver: "postgres", Host: "localhost", Database: "tenselens"},
			dialect: "postgres",
			driver:  "postgres",
		},
		{
			name:    "mysql",
			cfg:     DatabaseConfig{Driver: "mysql", Host: "localhost", Database: "tenselens"},
			dialect: "mysql",
			driver:  "mysql",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			require.NoError(t, tt.cfg.Validate())
			assert.Equal(t, tt.dialect, tt.cfg.Dialect())
			assert.Equal(t, tt.driver, tt.cfg.DriverName())
			assert.NotEmpty(t, tt.cfg.DSN())
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TL_EXPAND_A", "alpha")

	assert.Equal(t, "alpha", ExpandEnv("${TL_EXPAND_A}"))
	assert.Equal(t, "alpha", ExpandEnv("$TL_EXPAND_A"))
	assert.Equal(t, "fallback", ExpandEnv("${TL_EXPAND_MISSING:-fallback}"))
	assert.Equal(t, "no refs", ExpandEnv("no refs"))
}
