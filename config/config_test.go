package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = "127.0.0.1:9100"
DataDir = "./data"
GenesisFile = "genesis.yaml"

[receipts]
DSN = "receipts.db"

[auth]
HMACSecret = "0123456789abcdef0123"
Issuer = "ops"
Audience = "pool"
ClockSkewSeconds = 10

[rate_limit]
RequestsPerMinute = 600
Burst = 50

[telemetry]
Endpoint = "collector:4318"
Insecure = true
Traces = true
Headers = "x-team=staking"

[log]
Env = "prod"
Level = "debug"
File = "/var/log/stakepool.log"
MaxSizeMB = 64
MaxBackups = 3
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9100" || cfg.DataDir != "./data" || cfg.GenesisFile != "genesis.yaml" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Receipts.DSN != "receipts.db" {
		t.Fatalf("unexpected receipts dsn: %s", cfg.Receipts.DSN)
	}
	if cfg.Auth.Secret() != "0123456789abcdef0123" || cfg.Auth.Issuer != "ops" || cfg.Auth.ClockSkewSeconds != 10 {
		t.Fatalf("unexpected auth section: %+v", cfg.Auth)
	}
	if cfg.RateLimit.RequestsPerMinute != 600 || cfg.RateLimit.Burst != 50 {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Log.Level != "debug" || cfg.Log.MaxSizeMB != 64 || cfg.Log.MaxBackups != 3 {
		t.Fatalf("unexpected log section: %+v", cfg.Log)
	}

	tel := cfg.TelemetryConfig("stakepoold", cfg.Log.Env)
	if !tel.Traces || tel.Metrics || tel.Endpoint != "collector:4318" {
		t.Fatalf("unexpected telemetry config: %+v", tel)
	}
	if tel.Headers["x-team"] != "staking" {
		t.Fatalf("unexpected telemetry headers: %v", tel.Headers)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("unexpected default listen address: %s", cfg.ListenAddress)
	}
	if cfg.Auth.HMACSecretEnv != "STAKEPOOL_JWT_SECRET" {
		t.Fatalf("unexpected default secret env: %s", cfg.Auth.HMACSecretEnv)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.HealthAddress != ":8081" {
		t.Fatalf("unexpected default health address: %s", cfg.HealthAddress)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.ListenAddress != cfg.ListenAddress || reloaded.Auth != cfg.Auth {
		t.Fatalf("config changed across loads: %+v != %+v", reloaded, cfg)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read config dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.toml" {
		t.Fatalf("load must only write the config file, found %d entries", len(entries))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("DataDir = \"./d\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RateLimit.RequestsPerMinute != 120 || cfg.RateLimit.Burst != 60 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Auth.ClockSkewSeconds != 30 {
		t.Fatalf("unexpected clock skew default: %d", cfg.Auth.ClockSkewSeconds)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read config dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("load must not create files next to an existing config, found %d entries", len(entries))
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("Bootnodes = [\"1.1.1.1:6001\"]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Bootnodes") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			ListenAddress: ":8080",
			DataDir:       "./data",
			RateLimit:     RateLimit{RequestsPerMinute: 60, Burst: 10},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("expected base config to validate: %v", err)
	}

	cases := map[string]func(*Config){
		"short secret":      func(c *Config) { c.Auth.HMACSecret = "short" },
		"skew":              func(c *Config) { c.Auth.ClockSkewSeconds = 1000 },
		"zero burst":        func(c *Config) { c.RateLimit.Burst = 0 },
		"telemetry":         func(c *Config) { c.Telemetry.Metrics = true },
		"log level":         func(c *Config) { c.Log.Level = "chatty" },
		"negative rotation": func(c *Config) { c.Log.MaxBackups = -1 },
		"no data dir":       func(c *Config) { c.DataDir = " " },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestAuthSecretPrefersEnv(t *testing.T) {
	t.Setenv("STAKEPOOL_TEST_SECRET", "from-the-environment")
	auth := Auth{HMACSecret: "inline-secret-value", HMACSecretEnv: "STAKEPOOL_TEST_SECRET"}
	if got := auth.Secret(); got != "from-the-environment" {
		t.Fatalf("unexpected secret: %s", got)
	}
	auth.HMACSecretEnv = "STAKEPOOL_UNSET_SECRET"
	if got := auth.Secret(); got != "inline-secret-value" {
		t.Fatalf("unexpected fallback secret: %s", got)
	}
}
