package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradepilot/internal/logger"
	"tradepilot/internal/risk"
	"tradepilot/internal/signal"
	"tradepilot/internal/types"
)

// A volatility sub-score at or below this raises a volatility_spike warning.
const volatilitySpikeScore = -0.8

// runCycle executes one full decision pass: refresh broker state, run the
// risk checks, then walk the symbol universe. Per-symbol errors are recorded
// and never abort the remaining symbols.
func (e *Engine) runCycle(ctx context.Context) {
	e.mu.Lock()
	cfg := e.cfg.clone()
	rm := e.riskMgr
	e.mu.Unlock()

	account, positions, err := e.cache.Refresh(ctx)
	if err != nil {
		logger.Warnf("engine %s: cycle skipped, broker state refresh failed: %v", e.accountID, err)
		return
	}

	metrics := rm.Evaluate(account, positions)
	if e.audit != nil {
		if serr := e.audit.SavePortfolioSnapshot(ctx, e.accountID, metrics); serr != nil {
			logger.Warnf("engine %s: portfolio snapshot not persisted: %v", e.accountID, serr)
		}
	}

	entriesAllowed := rm.EntriesAllowed()
	if !entriesAllowed {
		// Automatic re-arm once the cooldown window has elapsed.
		if rerr := rm.ResetCircuitBreaker(false); rerr == nil {
			entriesAllowed = true
		} else if errors.Is(rerr, risk.ErrCooldownActive) {
			logger.Debugf("engine %s: breaker cooldown active: %v", e.accountID, rerr)
		}
	}

	// One unresolved entry per symbol: anything with an open order sits out.
	pendingOrders := make(map[string]bool)
	if orders, oerr := e.gateway.GetOrders(ctx, types.OrderFilter{Status: "open"}); oerr != nil {
		logger.Warnf("engine %s: open order lookup failed: %v", e.accountID, oerr)
	} else {
		for _, o := range orders {
			pendingOrders[o.Symbol] = true
		}
	}

	held := make(map[string]types.PositionSnapshot, len(positions))
	for _, p := range positions {
		held[p.Symbol] = p
	}

	cycle := &cycleState{
		cfg:            cfg,
		account:        account,
		held:           held,
		pendingOrders:  pendingOrders,
		thresholds:     rm.Thresholds(),
		entriesAllowed: entriesAllowed,
		openCount:      len(positions),
	}

	for _, symbol := range cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if e.symbolSuppressed(symbol) {
			continue
		}
		err := e.processSymbol(ctx, symbol, cycle)
		e.recordSymbolResult(symbol, cfg.MaxSymbolFailures, err)
	}
}

// cycleState carries the broker view one cycle decides against. It is built
// once per cycle so every symbol sees the same snapshot.
type cycleState struct {
	cfg            Config
	account        *types.AccountSnapshot
	held           map[string]types.PositionSnapshot
	pendingOrders  map[string]bool
	thresholds     risk.Thresholds
	entriesAllowed bool
	openCount      int
}

func (e *Engine) processSymbol(ctx context.Context, symbol string, cycle *cycleState) error {
	pos, holding := cycle.held[symbol]
	var heldSide types.PositionSide
	if holding {
		heldSide = pos.Side
	}

	now := time.Now()
	bars, err := e.gateway.GetBars(ctx, symbol, cycle.cfg.BarTimeframe,
		now.AddDate(0, 0, -cycle.cfg.HistoryDays), now)
	if err != nil {
		return fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}

	sig, err := e.signals.Generate(ctx, signal.Request{
		Symbol:   symbol,
		Bars:     bars,
		HeldSide: heldSide,
		TTL:      cycle.cfg.SignalTTL,
	})
	if errors.Is(err, signal.ErrInsufficientData) {
		logger.Debugf("engine %s: %s skipped: %v", e.accountID, symbol, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("generate signal for %s: %w", symbol, err)
	}

	if sig.Indicators.Volatility <= volatilitySpikeScore {
		e.emitAlert(ctx, types.RiskAlert{
			ID:       uuid.NewString(),
			Type:     types.AlertVolatilitySpike,
			Severity: types.SeverityWarning,
			Message: fmt.Sprintf("%s volatility well above its recent range (score %.2f)",
				symbol, sig.Indicators.Volatility),
			Action:    types.ActionNone,
			CreatedAt: now,
		})
	}

	if sig.Type == types.SignalHold {
		logger.Debugf("engine %s: %s hold (composite %.4f)", e.accountID, symbol, sig.Composite)
		return nil
	}

	if e.audit != nil {
		if serr := e.audit.SaveSignal(ctx, e.accountID, sig); serr != nil {
			logger.Warnf("engine %s: signal %s not persisted: %v", e.accountID, sig.ID, serr)
		}
	}
	if sig.Stale(time.Now()) {
		logger.Warnf("engine %s: %s signal %s expired before execution", e.accountID, symbol, sig.ID)
		return nil
	}

	if sig.Type == types.SignalExit {
		return e.executeExit(ctx, symbol, sig, pos, holding, cycle)
	}
	return e.executeEntry(ctx, symbol, sig, holding, cycle)
}

func (e *Engine) executeExit(ctx context.Context, symbol string, sig *types.Signal, pos types.PositionSnapshot, holding bool, cycle *cycleState) error {
	if !holding {
		logger.Debugf("engine %s: %s exit signal with no open position", e.accountID, symbol)
		return nil
	}
	// Exits run regardless of breaker state.
	order, err := e.gateway.ClosePosition(ctx, symbol, 100)
	if err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrOrderSubmissionFailed, symbol, err)
	}
	logger.Infof("engine %s: closing %s %s position (%s shares), order %s",
		e.accountID, symbol, pos.Side, pos.Qty, order.BrokerID)
	delete(cycle.held, symbol)
	cycle.openCount--
	e.recordOrder(ctx, order, sig, fmt.Sprintf("exit signal, composite %.4f", sig.Composite))
	return nil
}

func (e *Engine) executeEntry(ctx context.Context, symbol string, sig *types.Signal, holding bool, cycle *cycleState) error {
	switch {
	case !cycle.entriesAllowed:
		logger.Infof("engine %s: %s %s suppressed, circuit breaker not armed", e.accountID, symbol, sig.Type)
		return nil
	case holding:
		logger.Debugf("engine %s: %s already held, no pyramiding", e.accountID, symbol)
		return nil
	case cycle.pendingOrders[symbol]:
		logger.Infof("engine %s: %s has an unresolved order, entry skipped", e.accountID, symbol)
		return nil
	case cycle.openCount >= cycle.thresholds.MaxPositions:
		logger.Infof("engine %s: position limit %d reached, %s entry skipped",
			e.accountID, cycle.thresholds.MaxPositions, symbol)
		return nil
	}

	price := decimal.NewFromFloat(sig.Indicators.Raw["close"])
	qty := orderQty(cycle.account, cycle.thresholds, price)
	if qty.LessThanOrEqual(decimal.Zero) {
		logger.Infof("engine %s: %s entry sized to zero at %s, skipped", e.accountID, symbol, price)
		return nil
	}

	side := types.Buy
	if sig.Type == types.SignalEntryShort {
		side = types.Sell
	}
	order, err := e.gateway.SubmitOrder(ctx, types.OrderRequest{
		Symbol: symbol,
		Side:   side,
		Type:   types.Market,
		Qty:    qty,
	})
	if err != nil {
		return fmt.Errorf("%w: %s %s %s: %v", ErrOrderSubmissionFailed, side, qty, symbol, err)
	}
	logger.Infof("engine %s: submitted %s %s x%s (confidence %.2f), order %s",
		e.accountID, side, symbol, qty, sig.Confidence, order.BrokerID)
	cycle.pendingOrders[symbol] = true
	cycle.openCount++
	e.recordOrder(ctx, order, sig, fmt.Sprintf("%s %s signal, composite %.4f", sig.Strength, sig.Type, sig.Composite))
	return nil
}

// recordOrder persists the order and links it to the signal it executed.
// Audit failures are logged, never surfaced: the order already reached the
// broker.
func (e *Engine) recordOrder(ctx context.Context, order *types.Order, sig *types.Signal, reason string) {
	sig.OrderID = order.BrokerID
	order.SignalID = sig.ID
	order.Confidence = sig.Confidence
	order.Reason = reason
	if e.audit == nil {
		return
	}
	if err := e.audit.SaveOrder(ctx, e.accountID, order); err != nil {
		logger.Warnf("engine %s: order %s not persisted: %v", e.accountID, order.BrokerID, err)
	}
	if err := e.audit.LinkSignalOrder(ctx, sig.ID, order.BrokerID); err != nil {
		logger.Warnf("engine %s: signal %s not linked to order %s: %v", e.accountID, sig.ID, order.BrokerID, err)
	}
}

func (e *Engine) emitAlert(ctx context.Context, alert types.RiskAlert) {
	logger.Warnf("engine %s: %s alert: %s", e.accountID, alert.Type, alert.Message)
	if e.audit == nil {
		return
	}
	if err := e.audit.SaveAlert(ctx, e.accountID, &alert); err != nil {
		logger.Warnf("engine %s: alert not persisted: %v", e.accountID, err)
	}
}

func (e *Engine) symbolSuppressed(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suppressed[symbol]
}

// recordSymbolResult tracks consecutive per-symbol failures. Once a symbol
// fails the configured number of cycles in a row it is suppressed for the
// remainder of the run; a single success resets its counter.
func (e *Engine) recordSymbolResult(symbol string, maxFailures int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, symbol)
		return
	}
	e.failures[symbol]++
	count := e.failures[symbol]
	logger.Errorf("engine %s: %s cycle failure %d/%d: %v", e.accountID, symbol, count, maxFailures, err)
	if count >= maxFailures {
		e.suppressed[symbol] = true
		logger.Warnf("engine %s: %s suppressed after %d consecutive failures", e.accountID, symbol, count)
	}
}
