package config

import (
	"fmt"
	"strings"
)

var validRiskLevels = map[string]bool{
	"conservative": true,
	"moderate":     true,
	"aggressive":   true,
}

func validate(c *Config) error {
	if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
		return fmt.Errorf("broker.api_key and broker.api_secret are required")
	}
	level := strings.ToLower(strings.TrimSpace(c.Engine.RiskLevel))
	if !validRiskLevels[level] {
		return fmt.Errorf("engine.risk_level must be one of conservative|moderate|aggressive, got %q", c.Engine.RiskLevel)
	}
	c.Engine.RiskLevel = level
	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("engine.symbols must list at least one symbol")
	}
	if len(c.Engine.Symbols) > 20 {
		return fmt.Errorf("engine.symbols is capped at 20 symbols, got %d", len(c.Engine.Symbols))
	}
	seen := make(map[string]bool, len(c.Engine.Symbols))
	for i, sym := range c.Engine.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			return fmt.Errorf("engine.symbols[%d] is empty", i)
		}
		if seen[sym] {
			return fmt.Errorf("engine.symbols contains duplicate %s", sym)
		}
		seen[sym] = true
		c.Engine.Symbols[i] = sym
	}
	if c.Advisory.Enabled && c.Advisory.BaseURL == "" {
		return fmt.Errorf("advisory.base_url is required when advisory.enabled is true")
	}
	return nil
}
