// Package config loads and validates the YAML configuration that drives the
// trading core: broker credentials, engine universe, risk level, advisory
// scorer, and audit store.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Broker   BrokerConfig   `yaml:"broker"`
	Engine   EngineConfig   `yaml:"engine"`
	Risk     RiskConfig     `yaml:"risk"`
	Advisory AdvisoryConfig `yaml:"advisory"`
	Store    StoreConfig    `yaml:"store"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
	LogPath  string `yaml:"log_path"`
}

type BrokerConfig struct {
	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
	Paper       bool   `yaml:"paper"`
	BaseURL     string `yaml:"base_url"`      // trading API; derived from Paper when empty
	DataBaseURL string `yaml:"data_base_url"` // market-data API
	Feed        string `yaml:"feed"`
}

// EngineConfig is the per-account engine configuration. Symbols, risk level
// and loop cadence are mutable at runtime through the engine's UpdateConfig.
type EngineConfig struct {
	AccountID            string   `yaml:"account_id"`
	Symbols              []string `yaml:"symbols"`
	RiskLevel            string   `yaml:"risk_level"`
	CycleIntervalSeconds int      `yaml:"cycle_interval_seconds"`
	BarTimeframe         string   `yaml:"bar_timeframe"`
	HistoryDays          int      `yaml:"history_days"`
	SignalTTLSeconds     int      `yaml:"signal_ttl_seconds"`
	MaxSymbolFailures    int      `yaml:"max_symbol_failures"`
}

type RiskConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

type AdvisoryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML file at path, applies defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
