package config

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":8780"
	defaultBrokerPaperURL    = "https://paper-api.alpaca.markets"
	defaultBrokerLiveURL     = "https://api.alpaca.markets"
	defaultBrokerDataURL     = "https://data.alpaca.markets"
	defaultBrokerFeed        = "iex"
	defaultEngineRiskLevel   = "moderate"
	defaultCycleInterval     = 60
	defaultBarTimeframe      = "1Day"
	defaultHistoryDays       = 365
	defaultSignalTTL         = 300
	defaultMaxSymbolFailures = 3
	defaultRiskCooldown      = 900
	defaultAdvisoryTimeout   = 10
	defaultAdvisoryRetries   = 1
	defaultStorePath         = "data/tradepilot.db"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Broker.applyDefaults()
	c.Engine.applyDefaults()
	c.Risk.applyDefaults()
	c.Advisory.applyDefaults()
	c.Store.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (b *BrokerConfig) applyDefaults() {
	if b.BaseURL == "" {
		if b.Paper {
			b.BaseURL = defaultBrokerPaperURL
		} else {
			b.BaseURL = defaultBrokerLiveURL
		}
	}
	if b.DataBaseURL == "" {
		b.DataBaseURL = defaultBrokerDataURL
	}
	if b.Feed == "" {
		b.Feed = defaultBrokerFeed
	}
}

func (e *EngineConfig) applyDefaults() {
	if e.RiskLevel == "" {
		e.RiskLevel = defaultEngineRiskLevel
	}
	if e.CycleIntervalSeconds <= 0 {
		e.CycleIntervalSeconds = defaultCycleInterval
	}
	if e.BarTimeframe == "" {
		e.BarTimeframe = defaultBarTimeframe
	}
	if e.HistoryDays <= 0 {
		e.HistoryDays = defaultHistoryDays
	}
	if e.SignalTTLSeconds <= 0 {
		e.SignalTTLSeconds = defaultSignalTTL
	}
	if e.MaxSymbolFailures <= 0 {
		e.MaxSymbolFailures = defaultMaxSymbolFailures
	}
}

func (r *RiskConfig) applyDefaults() {
	if r.CooldownSeconds <= 0 {
		r.CooldownSeconds = defaultRiskCooldown
	}
}

func (a *AdvisoryConfig) applyDefaults() {
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = defaultAdvisoryTimeout
	}
	if a.MaxRetries < 0 {
		a.MaxRetries = defaultAdvisoryRetries
	}
}

func (s *StoreConfig) applyDefaults() {
	if s.Path == "" {
		s.Path = defaultStorePath
	}
}
