package app_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/app"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "miniokta", cfg.Issuer)
	require.Equal(t, cfg.Issuer, cfg.MFAIssuer, "MFA issuer falls back to the token issuer")
	require.Equal(t, app.StoreSQLite, cfg.StoreDriver)
	require.True(t, cfg.MFAReplayProtection)
	require.Equal(t, 8, cfg.MinPasswordLength)
	require.Equal(t, 8080, cfg.Port)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTH_ISSUER", "env-issuer")
	t.Setenv("AUTH_ALGORITHM", "HS256")
	t.Setenv("AUTH_TOKEN_TTL", "30m")
	t.Setenv("AUTH_STORE_DRIVER", "MONGO")
	t.Setenv("AUTH_MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("AUTH_MFA_SKEW", "2")
	t.Setenv("AUTH_MFA_REPLAY_PROTECTION", "false")
	t.Setenv("AUTH_SAML_ALLOWED_DOMAINS", "example.com, corp.example.com ,")
	t.Setenv("HOUSEKEEPING_INTERVAL", "15") // bare integers are minutes
	t.Setenv("PORT", "9090")
	t.Setenv("AUTH_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.1")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "env-issuer", cfg.Issuer)
	require.Equal(t, "env-issuer", cfg.MFAIssuer)
	require.Equal(t, "HS256", cfg.Algorithm)
	require.Equal(t, 30*time.Minute, cfg.TokenTTL)
	require.Equal(t, app.StoreMongo, cfg.StoreDriver)
	require.Equal(t, uint(2), cfg.MFASkew)
	require.False(t, cfg.MFAReplayProtection)
	require.Equal(t, []string{"example.com", "corp.example.com"}, cfg.SAML.AllowedDomains)
	require.Equal(t, 15*time.Minute, cfg.HousekeepingInterval)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.TrustedProxies)
}

func TestLoadConfigFromFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "auth.toml",
			content: `
env = "staging"

[server]
port = 7000
request_timeout = "2s"

[token]
issuer = "file-issuer"
ttl = "45m"

[password]
min_length = 12

[mfa]
issuer = "File MFA"
skew = 0
replay_protection = false
pending_max_age = "6h"
`,
		},
		{
			name: "yaml",
			file: "auth.yaml",
			content: `
env: staging
server:
  port: 7000
  request_timeout: 2s
token:
  issuer: file-issuer
  ttl: 45m
password:
  min_length: 12
mfa:
  issuer: File MFA
  skew: 0
  replay_protection: false
  pending_max_age: 6h
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_CONFIG_FILE", writeFile(t, tt.file, tt.content))

			cfg, err := app.LoadConfig()
			require.NoError(t, err)

			require.Equal(t, "staging", cfg.Env)
			require.Equal(t, 7000, cfg.Port)
			require.Equal(t, 2*time.Second, cfg.RequestTimeout)
			require.Equal(t, "file-issuer", cfg.Issuer)
			require.Equal(t, 45*time.Minute, cfg.TokenTTL)
			require.Equal(t, 12, cfg.MinPasswordLength)
			require.Equal(t, "File MFA", cfg.MFAIssuer)
			require.Equal(t, uint(0), cfg.MFASkew)
			require.False(t, cfg.MFAReplayProtection)
			require.Equal(t, 6*time.Hour, cfg.PendingEnrollmentMaxAge)
		})
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("AUTH_CONFIG_FILE", writeFile(t, "auth.toml", "[token]\nissuer = \"file-issuer\"\n"))
	t.Setenv("AUTH_ISSUER", "env-issuer")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "env-issuer", cfg.Issuer)
}

func TestLoadConfigFileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.toml") }},
		{"unknown extension", func(t *testing.T) string { return writeFile(t, "auth.ini", "x=1") }},
		{"malformed toml", func(t *testing.T) string { return writeFile(t, "auth.toml", "[token\n") }},
		{"bad duration", func(t *testing.T) string { return writeFile(t, "auth.yaml", "token:\n  ttl: soon\n") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_CONFIG_FILE", tt.path(t))
			_, err := app.LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*app.Config)
		wantErr string
	}{
		{"defaults are valid", func(*app.Config) {}, ""},
		{"missing issuer", func(c *app.Config) { c.Issuer = "" }, "issuer is required"},
		{"unknown algorithm", func(c *app.Config) { c.Algorithm = "RS256" }, "unsupported signing algorithm"},
		{"both key sources", func(c *app.Config) { c.SigningKey = "a"; c.SigningKeyFile = "b" }, "only one of"},
		{"zero ttl", func(c *app.Config) { c.TokenTTL = 0 }, "ttl must be positive"},
		{"mongo without uri", func(c *app.Config) { c.StoreDriver = app.StoreMongo }, "needs a URI"},
		{"unknown driver", func(c *app.Config) { c.StoreDriver = "postgres" }, "unknown store driver"},
		{"port out of range", func(c *app.Config) { c.Port = 70000 }, "out of range"},
		{"bad trusted proxy", func(c *app.Config) { c.TrustedProxies = []string{"not-an-ip"} }, "trusted proxy"},
		{"saml without base url", func(c *app.Config) {
			c.SAML.IDPMetadataURL = "https://idp.example.com/metadata"
			c.SAML.CertFile = "sp.crt"
			c.SAML.KeyFile = "sp.key"
		}, "saml needs a base url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := app.DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigValidateReportsEveryProblem(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.Issuer = ""
	cfg.Port = -1

	err := cfg.Validate()
	require.ErrorContains(t, err, "issuer is required")
	require.ErrorContains(t, err, "port -1 out of range")
}
