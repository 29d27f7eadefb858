package types

import "time"

type AlertType string

const (
	AlertDailyLossLimit  AlertType = "daily_loss_limit"
	AlertMaxDrawdown     AlertType = "max_drawdown"
	AlertPositionLimit   AlertType = "position_limit"
	AlertVolatilitySpike AlertType = "volatility_spike"
	AlertMarginCall      AlertType = "margin_call"
	AlertSystemError     AlertType = "system_error"
	AlertCircuitBreaker  AlertType = "circuit_breaker"
)

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertAction records what the system did in response to the alert.
type AlertAction string

const (
	ActionNone            AlertAction = "none"
	ActionNotified        AlertAction = "notified"
	ActionPausedTrading   AlertAction = "paused_trading"
	ActionClosedPositions AlertAction = "closed_positions"
	ActionEmergencyStop   AlertAction = "emergency_stop"
)

// RiskAlert is created whenever a risk threshold is crossed. Immutable once
// created except for the resolution fields.
type RiskAlert struct {
	ID         string        `json:"id"`
	Type       AlertType     `json:"type"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	Action     AlertAction   `json:"action"`
	CreatedAt  time.Time     `json:"created_at"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}
