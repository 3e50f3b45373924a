package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disguise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout())
	assert.Equal(t, DatabaseConfig{Driver: "sqlite3", DSN: "target.db"}, cfg.Target)
	assert.Equal(t, DatabaseConfig{Driver: "sqlite3", DSN: "vault.db"}, cfg.Vault)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "policies", cfg.Policies.Dir)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, cfg, Default())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
  cors_origins: ["https://app.example.com"]
target:
  driver: postgres
  dsn: postgres://localhost/app?sslmode=disable
vault:
  dsn: /var/lib/disguise/vault.db
redis:
  addr: localhost:6379
  lock_ttl: 10s
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres", cfg.Target.Driver)
	assert.Equal(t, "sqlite3", cfg.Vault.Driver)
	assert.Equal(t, "/var/lib/disguise/vault.db", cfg.Vault.DSN)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [oops"))
	assert.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://db/target")
	t.Setenv("TARGET_DRIVER", "postgres")
	t.Setenv("VAULT_DATABASE_URL", "postgres://db/vault")
	t.Setenv("VAULT_DRIVER", "postgres")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("DISGUISE_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("POLICIES_DIR", "/etc/disguise/policies")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, DatabaseConfig{Driver: "postgres", DSN: "postgres://db/target"}, cfg.Target)
	assert.Equal(t, DatabaseConfig{Driver: "postgres", DSN: "postgres://db/vault"}, cfg.Vault)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/etc/disguise/policies", cfg.Policies.Dir)
}

func TestLoadFromEnv_DotEnv(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("POLICIES_DIR=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("POLICIES_DIR") })

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Policies.Dir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"target driver", func(c *Config) { c.Target.Driver = "mysql" }},
		{"vault dsn", func(c *Config) { c.Vault.Driver = "postgres"; c.Vault.DSN = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"lock ttl", func(c *Config) { c.Redis.LockTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// testChdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
