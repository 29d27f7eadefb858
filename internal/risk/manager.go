package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradepilot/internal/logger"
	"tradepilot/internal/types"
)

var (
	// ErrCooldownActive is returned by automatic breaker resets attempted
	// before the cooldown window since the trip has elapsed.
	ErrCooldownActive = errors.New("circuit breaker cooldown still active")
	// ErrTradingBlocked marks a broker-side account block; it force-trips the
	// breaker independent of metrics.
	ErrTradingBlocked = errors.New("account trading blocked by broker")
)

// BreakerState is the circuit-breaker state machine.
type BreakerState int

const (
	// Armed: trading permitted.
	Armed BreakerState = iota
	// Tripped: no new entries; exits still allowed.
	Tripped
	// Cooldown: an automatic re-arm was requested while the timed window
	// since the trip is still running.
	Cooldown
)

func (s BreakerState) String() string {
	switch s {
	case Armed:
		return "ARMED"
	case Tripped:
		return "TRIPPED"
	case Cooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// AlertSink receives risk alerts as they are created. Implementations must
// not block the caller.
type AlertSink interface {
	Emit(alert types.RiskAlert)
}

// Status is a read-only view of the manager.
type Status struct {
	State             string          `json:"state"`
	Level             Level           `json:"level"`
	Thresholds        Thresholds      `json:"thresholds"`
	TrippedAt         *time.Time      `json:"tripped_at,omitempty"`
	TripCause         types.AlertType `json:"trip_cause,omitempty"`
	CooldownRemaining time.Duration   `json:"cooldown_remaining,omitempty"`
}

// Manager is the gatekeeper for order submission. One manager is owned by
// exactly one engine instance; all mutation goes through its methods.
type Manager struct {
	mu         sync.Mutex
	state      BreakerState
	level      Level
	thresholds Thresholds
	cooldown   time.Duration
	trippedAt  time.Time
	tripCause  types.AlertType
	sink       AlertSink
	nowFn      func() time.Time
}

func NewManager(level Level, cooldown time.Duration, sink AlertSink) *Manager {
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &Manager{
		state:      Armed,
		level:      level,
		thresholds: ThresholdsFor(level),
		cooldown:   cooldown,
		sink:       sink,
		nowFn:      time.Now,
	}
}

// Evaluate computes metrics from the latest snapshots and runs the breaker
// checks. It is called on every decision cycle; a broker-side trading block
// forces a trip regardless of metrics.
func (m *Manager) Evaluate(account *types.AccountSnapshot, positions []types.PositionSnapshot) Metrics {
	metrics := MetricsFromSnapshots(account, positions)

	m.mu.Lock()
	defer m.mu.Unlock()

	if account.TradingBlocked {
		m.tripLocked(types.AlertCircuitBreaker, types.SeverityCritical, ErrTradingBlocked.Error())
		return metrics
	}

	t := m.thresholds
	switch {
	case metrics.DailyLossPct > t.MaxDailyLossPct:
		m.tripLocked(types.AlertDailyLossLimit, types.SeverityCritical,
			fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%", metrics.DailyLossPct, t.MaxDailyLossPct))
	case metrics.DrawdownPct > t.MaxDrawdownPct:
		m.tripLocked(types.AlertMaxDrawdown, types.SeverityCritical,
			fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", metrics.DrawdownPct, t.MaxDrawdownPct))
	case metrics.PositionCount > t.MaxPositions:
		m.tripLocked(types.AlertPositionLimit, types.SeverityWarning,
			fmt.Sprintf("%d open positions exceed limit %d", metrics.PositionCount, t.MaxPositions))
	}
	return metrics
}

// tripLocked transitions to Tripped and emits the alert. Only the first trip
// records the cause; repeated breaches while tripped are not re-announced.
func (m *Manager) tripLocked(cause types.AlertType, severity types.AlertSeverity, message string) {
	if m.state == Tripped {
		return
	}
	m.state = Tripped
	m.trippedAt = m.nowFn()
	m.tripCause = cause
	logger.Warnf("circuit breaker TRIPPED: %s (%s)", cause, message)
	if m.sink != nil {
		m.sink.Emit(types.RiskAlert{
			ID:        uuid.NewString(),
			Type:      cause,
			Severity:  severity,
			Message:   message,
			Action:    types.ActionPausedTrading,
			CreatedAt: m.trippedAt,
		})
	}
}

// EntriesAllowed reports whether new entry orders may be submitted. Exits
// are always allowed regardless of breaker state.
func (m *Manager) EntriesAllowed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Armed
}

// ResetCircuitBreaker re-arms the breaker. A manual reset takes effect
// immediately; an automatic reset before the cooldown window since the trip
// has elapsed fails with ErrCooldownActive and leaves the breaker in
// Cooldown.
func (m *Manager) ResetCircuitBreaker(manual bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Armed {
		return nil
	}
	if !manual {
		if remaining := m.cooldownRemainingLocked(); remaining > 0 {
			m.state = Cooldown
			return fmt.Errorf("%w: %s remaining", ErrCooldownActive, remaining.Round(time.Second))
		}
	}
	logger.Infof("circuit breaker reset (manual=%v), re-arming", manual)
	m.state = Armed
	m.trippedAt = time.Time{}
	m.tripCause = ""
	return nil
}

// SetRiskLevel swaps the active threshold set. It does not clear a tripped
// breaker.
func (m *Manager) SetRiskLevel(level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
	m.thresholds = ThresholdsFor(level)
	logger.Infof("risk level set to %s: %+v", level, m.thresholds)
}

// Thresholds returns the limits currently in force.
func (m *Manager) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// Status returns the breaker state, active level, and thresholds in force.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:      m.state.String(),
		Level:      m.level,
		Thresholds: m.thresholds,
	}
	if !m.trippedAt.IsZero() {
		at := m.trippedAt
		st.TrippedAt = &at
		st.TripCause = m.tripCause
		st.CooldownRemaining = m.cooldownRemainingLocked()
	}
	return st
}

func (m *Manager) cooldownRemainingLocked() time.Duration {
	if m.trippedAt.IsZero() {
		return 0
	}
	elapsed := m.nowFn().Sub(m.trippedAt)
	if elapsed >= m.cooldown {
		return 0
	}
	return m.cooldown - elapsed
}
