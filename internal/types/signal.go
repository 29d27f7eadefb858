package types

import "time"

type SignalType string

const (
	SignalEntryLong  SignalType = "entry_long"
	SignalEntryShort SignalType = "entry_short"
	SignalExit       SignalType = "exit"
	SignalHold       SignalType = "hold"
)

type SignalStrength string

const (
	StrengthWeak     SignalStrength = "weak"
	StrengthModerate SignalStrength = "moderate"
	StrengthStrong   SignalStrength = "strong"
)

// IndicatorSnapshot carries the normalized sub-scores (-1..+1 each) that fed
// a signal, plus the raw indicator values they were derived from.
type IndicatorSnapshot struct {
	Momentum   float64            `json:"momentum"`
	Trend      float64            `json:"trend"`
	Volatility float64            `json:"volatility"`
	Volume     float64            `json:"volume"`
	Raw        map[string]float64 `json:"raw,omitempty"`
}

// Refinement is the outcome of the advisory scorer pass. Refined is false
// whenever the advisory call failed or was skipped, so the fallback stays
// observable in the output.
type Refinement struct {
	Refined    bool    `json:"refined"`
	Score      float64 `json:"score,omitempty"` // 0-100
	Conviction string  `json:"conviction,omitempty"`
}

// Signal is a directional trading decision for one symbol. A signal must not
// be acted on after ValidUntil.
type Signal struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Type       SignalType        `json:"type"`
	Confidence float64           `json:"confidence"` // 0-1
	Strength   SignalStrength    `json:"strength"`
	Composite  float64           `json:"composite"` // weighted aggregate, -1..+1
	Indicators IndicatorSnapshot `json:"indicators"`
	Advisory   Refinement        `json:"advisory"`

	TargetPrice     float64 `json:"target_price,omitempty"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
	ValidUntil  time.Time `json:"valid_until"`

	// OrderID is set once the engine acts on the signal.
	OrderID string `json:"order_id,omitempty"`
}

// Stale reports whether the signal's validity window has passed.
func (s *Signal) Stale(now time.Time) bool {
	return now.After(s.ValidUntil)
}

// Actionable reports whether the signal calls for an order at all.
func (s *Signal) Actionable() bool {
	return s.Type == SignalEntryLong || s.Type == SignalEntryShort || s.Type == SignalExit
}
