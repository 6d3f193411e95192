package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"
log_level = "debug"

[server]
port = 9000
auth_enabled = false

[oracle]
base_url = "https://feeds.example.com/v1"
max_age = "30m"

[engine]
archive_retention = "720h"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Server.AuthEnabled)
	assert.Equal(t, 30*time.Minute, cfg.Oracle.MaxAge.Duration)
	assert.Equal(t, 720*time.Hour, cfg.Engine.ArchiveRetention.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 60, cfg.Engine.RateLimit)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"full\"\n"), 0o600))

	t.Setenv("PREDICTIFY_POSTGRES_DSN", "postgres://user:pw@db:5432/predictify")
	t.Setenv("PREDICTIFY_SERVER_PORT", "8443")
	t.Setenv("PREDICTIFY_ORACLE_MAX_AGE", "10m")
	t.Setenv("PREDICTIFY_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://user:pw@db:5432/predictify", cfg.Postgres.DSN)
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Oracle.MaxAge.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Redis.Addr = ""
	cfg.Oracle.BaseURL = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "oracle: base_url")
	assert.Contains(t, err.Error(), "server: port")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Operator.PrivateKey = "4c0883a69102937d"
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Operator.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	// Empty secrets stay empty rather than gaining a placeholder.
	assert.Empty(t, red.Redis.Password)
}
