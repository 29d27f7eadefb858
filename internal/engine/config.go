package engine

import (
	"time"

	"tradepilot/internal/config"
	"tradepilot/internal/risk"
)

// Config is the engine's runtime configuration. It is mutable between
// cycles through UpdateConfig; an executing cycle keeps the settings it
// started with.
type Config struct {
	Symbols           []string      `json:"symbols"`
	RiskLevel         risk.Level    `json:"risk_level"`
	CycleInterval     time.Duration `json:"cycle_interval"`
	BarTimeframe      string        `json:"bar_timeframe"`
	HistoryDays       int           `json:"history_days"`
	SignalTTL         time.Duration `json:"signal_ttl"`
	MaxSymbolFailures int           `json:"max_symbol_failures"`
}

// ConfigPatch is a partial update; nil fields leave the current value.
type ConfigPatch struct {
	Symbols           *[]string   `json:"symbols,omitempty"`
	RiskLevel         *risk.Level `json:"risk_level,omitempty"`
	CycleIntervalSecs *int        `json:"cycle_interval_seconds,omitempty"`
	BarTimeframe      *string     `json:"bar_timeframe,omitempty"`
	HistoryDays       *int        `json:"history_days,omitempty"`
	SignalTTLSecs     *int        `json:"signal_ttl_seconds,omitempty"`
}

// ConfigFrom converts the loaded file configuration into the engine's
// runtime form. The risk level has already been validated at load time.
func ConfigFrom(ec config.EngineConfig) Config {
	level, err := risk.ParseLevel(ec.RiskLevel)
	if err != nil {
		level = risk.Moderate
	}
	return Config{
		Symbols:           append([]string(nil), ec.Symbols...),
		RiskLevel:         level,
		CycleInterval:     time.Duration(ec.CycleIntervalSeconds) * time.Second,
		BarTimeframe:      ec.BarTimeframe,
		HistoryDays:       ec.HistoryDays,
		SignalTTL:         time.Duration(ec.SignalTTLSeconds) * time.Second,
		MaxSymbolFailures: ec.MaxSymbolFailures,
	}
}

func (c *Config) applyDefaults() {
	if c.RiskLevel == "" {
		c.RiskLevel = risk.Moderate
	}
	if c.CycleInterval <= 0 {
		c.CycleInterval = time.Minute
	}
	if c.BarTimeframe == "" {
		c.BarTimeframe = "1Day"
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = 365
	}
	if c.SignalTTL <= 0 {
		c.SignalTTL = 5 * time.Minute
	}
	if c.MaxSymbolFailures <= 0 {
		c.MaxSymbolFailures = 3
	}
}

func (c Config) clone() Config {
	out := c
	out.Symbols = append([]string(nil), c.Symbols...)
	return out
}

func (c Config) merge(p ConfigPatch) Config {
	out := c.clone()
	if p.Symbols != nil {
		out.Symbols = append([]string(nil), (*p.Symbols)...)
	}
	if p.RiskLevel != nil {
		out.RiskLevel = *p.RiskLevel
	}
	if p.CycleIntervalSecs != nil && *p.CycleIntervalSecs > 0 {
		out.CycleInterval = time.Duration(*p.CycleIntervalSecs) * time.Second
	}
	if p.BarTimeframe != nil && *p.BarTimeframe != "" {
		out.BarTimeframe = *p.BarTimeframe
	}
	if p.HistoryDays != nil && *p.HistoryDays > 0 {
		out.HistoryDays = *p.HistoryDays
	}
	if p.SignalTTLSecs != nil && *p.SignalTTLSecs > 0 {
		out.SignalTTL = time.Duration(*p.SignalTTLSecs) * time.Second
	}
	return out
}
