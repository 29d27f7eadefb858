// Package engine hosts the trading engine: the state machine and decision
// loop that turn signals into broker orders under risk-manager control. One
// engine instance serves one account; instances are independent and reached
// through the Registry, never through globals.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradepilot/internal/broker"
	"tradepilot/internal/logger"
	"tradepilot/internal/risk"
	"tradepilot/internal/signal"
	"tradepilot/internal/store"
	"tradepilot/internal/types"
)

var (
	// ErrAlreadyRunning is returned by Start when the engine is mid-run.
	ErrAlreadyRunning = errors.New("engine already running")
	// ErrNotRunnable is returned by lifecycle calls invalid for the state.
	ErrNotRunnable = errors.New("operation not valid in current engine state")
	// ErrOrderSubmissionFailed wraps per-symbol broker submission errors;
	// it is recorded, never propagated out of a cycle.
	ErrOrderSubmissionFailed = errors.New("order submission failed")
)

// State is the engine lifecycle state machine:
// Idle -> Running <-> Paused -> Stopped, with EmergencyStop reachable from
// any non-Idle state.
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Deps are the injected collaborators for one engine instance.
type Deps struct {
	AccountID string
	Gateway   broker.Gateway
	Cache     *broker.StateCache
	Signals   *signal.Generator
	Audit     store.AuditStore
	Cooldown  time.Duration
}

// Status is the combined engine + risk view served to operators.
type Status struct {
	AccountID string      `json:"account_id"`
	State     string      `json:"state"`
	Config    Config      `json:"config"`
	Risk      risk.Status `json:"risk"`
	Cycles    uint64      `json:"cycles"`
}

// Engine owns the decision loop for one account. All state transitions and
// reads go through one mutex so they are linearizable: a read after a
// transition call returns always observes the post-transition state.
type Engine struct {
	accountID string
	gateway   broker.Gateway
	cache     *broker.StateCache
	signals   *signal.Generator
	audit     store.AuditStore
	cooldown  time.Duration

	mu            sync.Mutex
	state         State
	cfg           Config
	riskMgr       *risk.Manager
	cancelLoop    context.CancelFunc
	stopCh        chan struct{}
	stopRequested bool
	loopDone      chan struct{}
	cycles        uint64

	// consecutive failure tracking; symbols past the threshold are
	// suppressed for the remainder of the run.
	failures   map[string]int
	suppressed map[string]bool
}

func New(deps Deps, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		accountID:  deps.AccountID,
		gateway:    deps.Gateway,
		cache:      deps.Cache,
		signals:    deps.Signals,
		audit:      deps.Audit,
		cooldown:   deps.Cooldown,
		state:      Idle,
		cfg:        cfg,
		failures:   make(map[string]int),
		suppressed: make(map[string]bool),
	}
}

// Start verifies broker connectivity, arms the risk manager for the
// configured level, and launches the decision loop. Valid from Idle and
// Stopped only.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == Running || e.state == Paused {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	cfg := e.cfg
	e.mu.Unlock()

	// Connectivity gate: a failed start leaves the previous state intact.
	if _, _, err := e.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("%w: %v", broker.ErrNotConnected, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Running || e.state == Paused {
		return ErrAlreadyRunning
	}
	e.riskMgr = risk.NewManager(cfg.RiskLevel, e.cooldown, &alertRecorder{
		accountID: e.accountID,
		audit:     e.audit,
	})
	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancelLoop = cancel
	e.stopCh = make(chan struct{})
	e.stopRequested = false
	e.loopDone = make(chan struct{})
	e.failures = make(map[string]int)
	e.suppressed = make(map[string]bool)
	e.state = Running
	logger.Infof("engine %s: starting, level=%s symbols=%v interval=%s",
		e.accountID, cfg.RiskLevel, cfg.Symbols, cfg.CycleInterval)
	go e.runLoop(loopCtx)
	return nil
}

// Stop requests a cooperative halt: the in-flight cycle finishes, then the
// loop exits and the engine is Stopped. Positions are left open. Calling
// Stop on an already-Stopped engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	switch e.state {
	case Stopped:
		e.mu.Unlock()
		return nil
	case Idle:
		e.state = Stopped
		e.mu.Unlock()
		return nil
	}
	if !e.stopRequested {
		close(e.stopCh)
		e.stopRequested = true
	}
	done := e.loopDone
	e.mu.Unlock()
	<-done

	e.mu.Lock()
	e.state = Stopped
	e.mu.Unlock()
	logger.Infof("engine %s: stopped", e.accountID)
	return nil
}

// Pause suspends decision cycles without tearing the loop down.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Running {
		return fmt.Errorf("%w: pause from %s", ErrNotRunnable, e.state)
	}
	e.state = Paused
	logger.Infof("engine %s: paused", e.accountID)
	return nil
}

// Resume continues a paused engine.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Paused {
		return fmt.Errorf("%w: resume from %s", ErrNotRunnable, e.state)
	}
	e.state = Running
	logger.Infof("engine %s: resumed", e.accountID)
	return nil
}

// EmergencyStop preemptively halts the loop (an order already in flight to
// the broker completes naturally), then flattens every position, recording
// the outcome per symbol. A failing close never aborts the remaining
// symbols. The engine always ends Stopped.
func (e *Engine) EmergencyStop(ctx context.Context) ([]broker.CloseResult, error) {
	e.mu.Lock()
	if e.state == Idle {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: emergency stop from IDLE", ErrNotRunnable)
	}
	cancel := e.cancelLoop
	done := e.loopDone
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	logger.Warnf("engine %s: EMERGENCY STOP, flattening all positions", e.accountID)
	results, err := e.gateway.CloseAllPositions(ctx)
	if err != nil {
		logger.Errorf("engine %s: close-all sweep failed: %v", e.accountID, err)
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if e.audit != nil {
		if serr := e.audit.SaveCloseReport(ctx, e.accountID, results); serr != nil {
			logger.Warnf("engine %s: close report not persisted: %v", e.accountID, serr)
		}
		alert := &types.RiskAlert{
			ID:        uuid.NewString(),
			Type:      types.AlertCircuitBreaker,
			Severity:  types.SeverityCritical,
			Message:   fmt.Sprintf("emergency stop: %d positions closed, %d failed", len(results)-failed, failed),
			Action:    types.ActionEmergencyStop,
			CreatedAt: time.Now(),
		}
		if serr := e.audit.SaveAlert(ctx, e.accountID, alert); serr != nil {
			logger.Warnf("engine %s: emergency alert not persisted: %v", e.accountID, serr)
		}
	}

	e.mu.Lock()
	e.state = Stopped
	e.mu.Unlock()
	logger.Warnf("engine %s: emergency stop complete (%d closed, %d failed)", e.accountID, len(results)-failed, failed)
	return results, err
}

// UpdateConfig merges the patch into the active configuration. A cycle
// already executing keeps its settings; the merge applies from the next
// cycle.
func (e *Engine) UpdateConfig(patch ConfigPatch) Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = e.cfg.merge(patch)
	if patch.RiskLevel != nil && e.riskMgr != nil {
		e.riskMgr.SetRiskLevel(e.cfg.RiskLevel)
	}
	logger.Infof("engine %s: config updated: symbols=%v level=%s", e.accountID, e.cfg.Symbols, e.cfg.RiskLevel)
	return e.cfg
}

// GetState returns the current lifecycle state.
func (e *Engine) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GetConfig returns a copy of the active configuration.
func (e *Engine) GetConfig() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.clone()
}

// RiskManager exposes the per-instance risk manager; nil before first Start.
func (e *Engine) RiskManager() *risk.Manager {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.riskMgr
}

// Status reports engine and risk state together.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		AccountID: e.accountID,
		State:     e.state.String(),
		Config:    e.cfg.clone(),
		Cycles:    e.cycles,
	}
	if e.riskMgr != nil {
		st.Risk = e.riskMgr.Status()
	}
	return st
}

// runLoop drives one decision cycle per tick. Cycles are serialized: the
// ticker fires are dropped while a long cycle runs, so no two overlap.
func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.loopDone)

	e.mu.Lock()
	interval := e.cfg.CycleInterval
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First cycle runs immediately rather than waiting a full interval.
	e.maybeRunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("engine %s: loop cancelled", e.accountID)
			return
		case <-e.stopCh:
			logger.Infof("engine %s: loop stop requested", e.accountID)
			return
		case <-ticker.C:
			e.maybeRunCycle(ctx)
		}
	}
}

func (e *Engine) maybeRunCycle(ctx context.Context) {
	e.mu.Lock()
	paused := e.state == Paused
	e.mu.Unlock()
	if paused || ctx.Err() != nil {
		return
	}
	e.runCycle(ctx)
	e.mu.Lock()
	e.cycles++
	e.mu.Unlock()
}

// alertRecorder fans risk alerts into the audit store.
type alertRecorder struct {
	accountID string
	audit     store.AuditStore
}

func (r *alertRecorder) Emit(alert types.RiskAlert) {
	if r.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.audit.SaveAlert(ctx, r.accountID, &alert); err != nil {
		logger.Warnf("risk alert not persisted: %v", err)
	}
}
