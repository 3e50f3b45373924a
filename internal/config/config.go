// Package config loads the disguise service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service and CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Target   DatabaseConfig `yaml:"target"`
	Vault    DatabaseConfig `yaml:"vault"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Policies PolicyConfig   `yaml:"policies"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	// RequestTimeoutSeconds bounds each HTTP request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-request timeout.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// DatabaseConfig names a database/sql driver and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the per-subject distributed lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PolicyConfig locates the CUE policy definitions.
type PolicyConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML configuration file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is loaded first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Target.DSN = v
	}
	if v := os.Getenv("TARGET_DRIVER"); v != "" {
		cfg.Target.Driver = v
	}
	if v := os.Getenv("VAULT_DATABASE_URL"); v != "" {
		cfg.Vault.DSN = v
	}
	if v := os.Getenv("VAULT_DRIVER"); v != "" {
		cfg.Vault.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DISGUISE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("POLICIES_DIR"); v != "" {
		cfg.Policies.Dir = v
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.RequestTimeoutSeconds == 0 {
		c.Server.RequestTimeoutSeconds = 60
	}
	if c.Target.Driver == "" {
		c.Target.Driver = "sqlite3"
	}
	if c.Target.DSN == "" && c.Target.Driver == "sqlite3" {
		c.Target.DSN = "target.db"
	}
	if c.Vault.Driver == "" {
		c.Vault.Driver = "sqlite3"
	}
	if c.Vault.DSN == "" && c.Vault.Driver == "sqlite3" {
		c.Vault.DSN = "vault.db"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Policies.Dir == "" {
		c.Policies.Dir = "policies"
	}
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	for name, db := range map[string]DatabaseConfig{"target": c.Target, "vault": c.Vault} {
		switch db.Driver {
		case "sqlite3", "postgres":
		default:
			return fmt.Errorf("%s.driver: unsupported driver %q", name, db.Driver)
		}
		if db.DSN == "" {
			return fmt.Errorf("%s.dsn is required", name)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Redis.LockTTL < 0 {
		return fmt.Errorf("redis.lock_ttl must not be negative")
	}
	return nil
}
