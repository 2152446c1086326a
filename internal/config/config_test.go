package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, AuthInteractive, cfg.Dreamstime.AuthMode)
	assert.Equal(t, "cookies.json", cfg.Dreamstime.CookieFile)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "stream:autouploader_progress", cfg.Redis.Stream)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "8090")
	t.Setenv("AUTH_MODE", "cookies")
	t.Setenv("BROWSER_HEADLESS", "true")
	t.Setenv("BROWSER_TIMEOUT", "45s")
	t.Setenv("DREAMSTIME_USERNAME", "alice")
	t.Setenv("DREAMSTIME_PASSWORD", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, AuthCookies, cfg.Dreamstime.AuthMode)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.Timeout)
	assert.True(t, cfg.CredentialsConfigured())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Dreamstime.AuthMode = "magic" },
			wantErr: "AUTH_MODE",
		},
		{
			name: "cdp without endpoint",
			mutate: func(c *Config) {
				c.Dreamstime.AuthMode = AuthCDP
				c.Dreamstime.CDPEndpoint = ""
			},
			wantErr: "CDP_ENDPOINT",
		},
		{
			name: "key required but unset",
			mutate: func(c *Config) {
				c.Server.RequireAPIKey = true
				c.Server.APIKey = ""
			},
			wantErr: "API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// Disabled unless a host is configured.
	assert.Empty(t, cfg.DatabaseDSN())

	cfg.Database.Host = "localhost"
	cfg.Database.Password = "pw"
	assert.Equal(t, "postgres://postgres:pw@localhost:5432/autouploader?sslmode=disable", cfg.DatabaseDSN())
}
