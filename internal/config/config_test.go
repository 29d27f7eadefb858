package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
broker:
  api_key: "key"
  api_secret: "secret"
  paper: true
engine:
  symbols: [aapl, msft]
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8780", cfg.App.HTTPAddr)
	assert.Equal(t, "https://paper-api.alpaca.markets", cfg.Broker.BaseURL)
	assert.Equal(t, "iex", cfg.Broker.Feed)
	assert.Equal(t, "moderate", cfg.Engine.RiskLevel)
	assert.Equal(t, 60, cfg.Engine.CycleIntervalSeconds)
	assert.Equal(t, "1Day", cfg.Engine.BarTimeframe)
	assert.Equal(t, 900, cfg.Risk.CooldownSeconds)
	assert.Equal(t, "data/tradepilot.db", cfg.Store.Path)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Engine.Symbols, "symbols normalize to uppercase")
}

func TestLoad_LiveBaseURL(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
broker:
  api_key: "key"
  api_secret: "secret"
  paper: false
engine:
  symbols: [SPY]
`))
	require.NoError(t, err)
	assert.Equal(t, "https://api.alpaca.markets", cfg.Broker.BaseURL)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"missing credentials": `
engine:
  symbols: [AAPL]
`,
		"bad risk level": `
broker: {api_key: k, api_secret: s}
engine:
  symbols: [AAPL]
  risk_level: reckless
`,
		"no symbols": `
broker: {api_key: k, api_secret: s}
engine:
  risk_level: moderate
`,
		"duplicate symbols": `
broker: {api_key: k, api_secret: s}
engine:
  symbols: [AAPL, aapl]
`,
		"advisory without base url": `
broker: {api_key: k, api_secret: s}
engine:
  symbols: [AAPL]
advisory:
  enabled: true
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
