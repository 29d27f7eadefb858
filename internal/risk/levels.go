// Package risk computes account risk metrics and enforces the circuit
// breaker that gates every order submission.
package risk

import (
	"fmt"
	"strings"
)

// Level is the closed set of risk profiles. Each maps to an immutable
// Thresholds value; there is no dynamic threshold bag.
type Level string

const (
	Conservative Level = "conservative"
	Moderate     Level = "moderate"
	Aggressive   Level = "aggressive"
)

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case Conservative:
		return Conservative, nil
	case Moderate:
		return Moderate, nil
	case Aggressive:
		return Aggressive, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// Thresholds are the limits in force for a risk level. Breaches of the first
// three trip the circuit breaker; the sizing fields bound order quantity.
type Thresholds struct {
	MaxDailyLossPct float64 `json:"max_daily_loss_pct"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	MaxPositions    int     `json:"max_positions"`

	// PositionRiskPct is the fraction of buying power committed per entry;
	// MaxPositionPct caps any single position against portfolio value.
	PositionRiskPct float64 `json:"position_risk_pct"`
	MaxPositionPct  float64 `json:"max_position_pct"`
}

var levelThresholds = map[Level]Thresholds{
	Conservative: {MaxDailyLossPct: 5, MaxDrawdownPct: 10, MaxPositions: 3, PositionRiskPct: 0.05, MaxPositionPct: 0.10},
	Moderate:     {MaxDailyLossPct: 10, MaxDrawdownPct: 15, MaxPositions: 5, PositionRiskPct: 0.10, MaxPositionPct: 0.20},
	Aggressive:   {MaxDailyLossPct: 15, MaxDrawdownPct: 30, MaxPositions: 10, PositionRiskPct: 0.20, MaxPositionPct: 0.30},
}

// ThresholdsFor returns the threshold set for a level. Unknown levels get
// the moderate set.
func ThresholdsFor(level Level) Thresholds {
	if t, ok := levelThresholds[level]; ok {
		return t
	}
	return levelThresholds[Moderate]
}
