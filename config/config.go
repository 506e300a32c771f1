package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Marketfeed MarketfeedConfig `yaml:"marketfeed"`
	Binance    BinanceConfig    `yaml:"binance"`
	Streams    StreamsConfig    `yaml:"streams"`
	Poll       PollConfig       `yaml:"poll"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Status     StatusConfig     `yaml:"status"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StatusConfig controls the HTTP status endpoint.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type MarketfeedConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	ChannelSize bool   `yaml:"channel_size"`
	Region      string `yaml:"region"`
	Namespace   string `yaml:"namespace"`
	Dashboard   string `yaml:"dashboard"`
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

// BinanceConfig covers the REST side: endpoints, credentials, concurrency,
// retry policy and response caching.
type BinanceConfig struct {
	RestURL string `yaml:"rest_url"`
	FapiURL string `yaml:"fapi_url"`
	WsURL   string `yaml:"ws_url"`

	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	FapiKey    string `yaml:"fapi_key"`
	FapiSecret string `yaml:"fapi_secret"`

	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	Retry             RetryConfig   `yaml:"retry"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// StreamsConfig covers the websocket side: which symbols to subscribe,
// how many stream names share one combined connection, and reconnect policy.
type StreamsConfig struct {
	Symbols        []string      `yaml:"symbols"`
	KlineInterval  string        `yaml:"kline_interval"`
	GroupSize      int           `yaml:"group_size"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// PollConfig covers REST polling for signals absent from the push channel.
type PollConfig struct {
	FundingInterval time.Duration `yaml:"funding_interval"`
	RateLimit       time.Duration `yaml:"rate_limit"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ChannelSize: true,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Credentials always come from the environment when present so they
	// never need to live in the yaml file.
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Binance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		config.Binance.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_FAPI_KEY"); v != "" {
		config.Binance.FapiKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_FAPI_SECRET"); v != "" {
		config.Binance.FapiSecret = strings.TrimSpace(v)
	}

	// Futures credentials fall back to the spot pair.
	if config.Binance.FapiKey == "" {
		config.Binance.FapiKey = config.Binance.APIKey
	}
	if config.Binance.FapiSecret == "" {
		config.Binance.FapiSecret = config.Binance.APISecret
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Binance.RestURL == "" {
		cfg.Binance.RestURL = "https://api.binance.com/api/v3"
	}
	if cfg.Binance.FapiURL == "" {
		cfg.Binance.FapiURL = "https://fapi.binance.com"
	}
	if cfg.Binance.WsURL == "" {
		cfg.Binance.WsURL = "wss://stream.binance.com:9443"
	}
	if cfg.Binance.Concurrency <= 0 {
		cfg.Binance.Concurrency = 8
	}
	if cfg.Binance.RequestsPerSecond <= 0 {
		cfg.Binance.RequestsPerSecond = 20
	}
	if cfg.Binance.Timeout <= 0 {
		cfg.Binance.Timeout = 20 * time.Second
	}
	if cfg.Binance.Retry.MaxAttempts <= 0 {
		cfg.Binance.Retry.MaxAttempts = 3
	}
	if cfg.Binance.Retry.BaseDelay <= 0 {
		cfg.Binance.Retry.BaseDelay = 400 * time.Millisecond
	}
	if cfg.Binance.Retry.MaxDelay <= 0 {
		cfg.Binance.Retry.MaxDelay = 5 * time.Second
	}
	if cfg.Streams.KlineInterval == "" {
		cfg.Streams.KlineInterval = "1h"
	}
	if cfg.Streams.GroupSize <= 0 {
		cfg.Streams.GroupSize = 16
	}
	if cfg.Streams.ReconnectDelay <= 0 {
		cfg.Streams.ReconnectDelay = time.Second
	}
	if cfg.Streams.ReadTimeout <= 0 {
		cfg.Streams.ReadTimeout = time.Minute
	}
	if cfg.Streams.PingInterval <= 0 {
		cfg.Streams.PingInterval = 20 * time.Second
	}
	if cfg.Poll.FundingInterval <= 0 {
		cfg.Poll.FundingInterval = time.Minute
	}
	if cfg.Poll.RateLimit <= 0 {
		cfg.Poll.RateLimit = 250 * time.Millisecond
	}
	if cfg.Channels.EventBuffer <= 0 {
		cfg.Channels.EventBuffer = 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Marketfeed.Name == "" {
		return fmt.Errorf("marketfeed.name is required")
	}

	if cfg.Marketfeed.Version == "" {
		return fmt.Errorf("marketfeed.version is required")
	}

	if len(cfg.Streams.Symbols) == 0 {
		return fmt.Errorf("streams.symbols must list at least one symbol")
	}

	for _, s := range cfg.Streams.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("streams.symbols must not contain empty entries")
		}
	}

	if cfg.Binance.Retry.BaseDelay > cfg.Binance.Retry.MaxDelay {
		return fmt.Errorf("binance.retry.base_delay must not exceed binance.retry.max_delay")
	}

	return nil
}
