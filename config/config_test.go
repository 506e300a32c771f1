package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

const minimalYAML = `
marketfeed:
  name: marketfeed
  version: "1.0.0"
streams:
  symbols: [BTCUSDT, ETHUSDT]
`

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Binance.Concurrency != 8 {
		t.Errorf("expected default concurrency 8, got %d", cfg.Binance.Concurrency)
	}
	if cfg.Binance.Timeout != 20*time.Second {
		t.Errorf("expected default timeout 20s, got %v", cfg.Binance.Timeout)
	}
	if cfg.Binance.Retry.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Binance.Retry.MaxAttempts)
	}
	if cfg.Binance.Retry.BaseDelay != 400*time.Millisecond {
		t.Errorf("expected default base delay 400ms, got %v", cfg.Binance.Retry.BaseDelay)
	}
	if cfg.Binance.Retry.MaxDelay != 5*time.Second {
		t.Errorf("expected default max delay 5s, got %v", cfg.Binance.Retry.MaxDelay)
	}
	if cfg.Streams.ReconnectDelay != time.Second {
		t.Errorf("expected default reconnect delay 1s, got %v", cfg.Streams.ReconnectDelay)
	}
	if cfg.Streams.GroupSize != 16 {
		t.Errorf("expected default group size 16, got %d", cfg.Streams.GroupSize)
	}
	if cfg.Channels.EventBuffer != 1024 {
		t.Errorf("expected default event buffer 1024, got %d", cfg.Channels.EventBuffer)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeTempConfig(t, `
marketfeed:
  name: marketfeed
  version: "1.0.0"
binance:
  concurrency: 4
  timeout: 10s
  retry:
    max_attempts: 5
    base_delay: 200ms
    max_delay: 2s
  cache_ttl: 30s
streams:
  symbols: [BTCUSDT]
  kline_interval: 5m
  group_size: 8
poll:
  funding_interval: 2m
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Binance.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Binance.Concurrency)
	}
	if cfg.Binance.CacheTTL != 30*time.Second {
		t.Errorf("expected cache ttl 30s, got %v", cfg.Binance.CacheTTL)
	}
	if cfg.Streams.KlineInterval != "5m" {
		t.Errorf("expected kline interval 5m, got %s", cfg.Streams.KlineInterval)
	}
	if cfg.Poll.FundingInterval != 2*time.Minute {
		t.Errorf("expected funding interval 2m, got %v", cfg.Poll.FundingInterval)
	}
}

func TestLoadConfigEnvCredentials(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "env-key")
	t.Setenv("BINANCE_API_SECRET", "env-secret")

	path := writeTempConfig(t, minimalYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Binance.APIKey != "env-key" {
		t.Errorf("expected api key from env, got %q", cfg.Binance.APIKey)
	}
	if cfg.Binance.FapiKey != "env-key" {
		t.Errorf("expected fapi key to fall back to spot key, got %q", cfg.Binance.FapiKey)
	}
	if cfg.Binance.FapiSecret != "env-secret" {
		t.Errorf("expected fapi secret to fall back to spot secret, got %q", cfg.Binance.FapiSecret)
	}
}

func TestLoadConfigMissingSymbols(t *testing.T) {
	path := writeTempConfig(t, `
marketfeed:
  name: marketfeed
  version: "1.0.0"
streams:
  symbols: []
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error for empty symbols")
	}
	if !strings.Contains(err.Error(), "symbols") {
		t.Errorf("expected symbols error, got: %v", err)
	}
}

func TestLoadConfigBadRetryBounds(t *testing.T) {
	path := writeTempConfig(t, `
marketfeed:
  name: marketfeed
  version: "1.0.0"
binance:
  retry:
    base_delay: 10s
    max_delay: 2s
streams:
  symbols: [BTCUSDT]
`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected validation error for base_delay > max_delay")
	}
}

func TestCurrentEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	if got := CurrentEnvironment(); got != EnvProduction {
		t.Errorf("expected prod, got %s", got)
	}

	t.Setenv("APP_ENV", "")
	if got := CurrentEnvironment(); got != EnvDevelopment {
		t.Errorf("expected dev, got %s", got)
	}
}

func TestIsProduction(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if !IsProduction() {
		t.Error("APP_ENV=prod should report production")
	}

	t.Setenv("APP_ENV", "staging")
	if IsProduction() {
		t.Error("staging must not report production")
	}
}

func TestLogDirCreatesEnvironmentDir(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	base := t.TempDir()

	dir, err := LogDir(base)
	if err != nil {
		t.Fatalf("LogDir returned error: %v", err)
	}
	if dir != filepath.Join(base, "staging") {
		t.Errorf("unexpected log dir: %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("log dir was not created: %v", err)
	}
}
