// Package apihttp exposes the operator control surface over HTTP: engine
// lifecycle, risk controls, signal previews, and broker pass-through reads.
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradepilot/internal/broker"
	"tradepilot/internal/engine"
	"tradepilot/internal/logger"
	"tradepilot/internal/risk"
	"tradepilot/internal/signal"
	"tradepilot/internal/types"
)

// Router wires the operator endpoints. All engine operations resolve the
// target instance through the registry; broker reads go straight to the
// gateway.
type Router struct {
	Registry       *engine.Registry
	Gateway        broker.Gateway
	Cache          *broker.StateCache
	Signals        *signal.Generator
	DefaultAccount string
}

func NewRouter(registry *engine.Registry, gw broker.Gateway, cache *broker.StateCache, signals *signal.Generator, defaultAccount string) *Router {
	return &Router{
		Registry:       registry,
		Gateway:        gw,
		Cache:          cache,
		Signals:        signals,
		DefaultAccount: defaultAccount,
	}
}

// Register mounts the API under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/engine/start", r.handleEngineStart)
	group.POST("/engine/stop", r.handleEngineStop)
	group.POST("/engine/pause", r.handleEnginePause)
	group.POST("/engine/resume", r.handleEngineResume)
	group.POST("/engine/emergency-stop", r.handleEmergencyStop)
	group.GET("/engine/status", r.handleEngineStatus)
	group.PUT("/engine/config", r.handleEngineConfig)

	group.GET("/risk/metrics", r.handleRiskMetrics)
	group.PUT("/risk/level", r.handleRiskLevel)
	group.POST("/risk/reset", r.handleRiskReset)

	group.GET("/signals/:symbol", r.handleSignalPreview)

	group.GET("/account", r.handleAccount)
	group.GET("/positions", r.handlePositions)
	group.POST("/positions/:symbol/close", r.handleClosePosition)
	group.POST("/positions/close-all", r.handleCloseAll)
	group.GET("/orders", r.handleOrders)
	group.POST("/orders", r.handleSubmitOrder)
	group.DELETE("/orders/:id", r.handleCancelOrder)

	group.GET("/market/clock", r.handleClock)
	group.GET("/market/snapshot/:symbol", r.handleSnapshot)
}

// engineFor resolves the engine instance for the request, defaulting to the
// configured primary account.
func (r *Router) engineFor(c *gin.Context) *engine.Engine {
	accountID := strings.TrimSpace(c.Query("account_id"))
	if accountID == "" {
		accountID = r.DefaultAccount
	}
	return r.Registry.GetOrCreate(accountID)
}

func (r *Router) handleEngineStart(c *gin.Context) {
	eng := r.engineFor(c)
	if err := eng.Start(c.Request.Context()); err != nil {
		status := http.StatusConflict
		if errors.Is(err, broker.ErrNotConnected) {
			status = http.StatusBadGateway
		}
		logger.Errorf("[api] engine start failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] engine started ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, eng.Status())
}

func (r *Router) handleEngineStop(c *gin.Context) {
	eng := r.engineFor(c)
	if err := eng.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] engine stopped ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, eng.Status())
}

func (r *Router) handleEnginePause(c *gin.Context) {
	eng := r.engineFor(c)
	if err := eng.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, eng.Status())
}

func (r *Router) handleEngineResume(c *gin.Context) {
	eng := r.engineFor(c)
	if err := eng.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, eng.Status())
}

func (r *Router) handleEmergencyStop(c *gin.Context) {
	eng := r.engineFor(c)
	logger.Warnf("[api] emergency stop requested ip=%s", c.ClientIP())
	results, err := eng.EmergencyStop(c.Request.Context())
	if err != nil && results == nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"status": eng.GetState().String(), "closed": results}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleEngineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.engineFor(c).Status())
}

func (r *Router) handleEngineConfig(c *gin.Context) {
	var patch engine.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if patch.RiskLevel != nil {
		level, err := risk.ParseLevel(string(*patch.RiskLevel))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		patch.RiskLevel = &level
	}
	cfg := r.engineFor(c).UpdateConfig(patch)
	c.JSON(http.StatusOK, cfg)
}

func (r *Router) handleRiskMetrics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	account, positions, err := r.Cache.Refresh(ctx)
	if err != nil {
		logger.Errorf("[api] risk metrics refresh failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	metrics := risk.MetricsFromSnapshots(account, positions)
	resp := gin.H{"metrics": metrics}
	if rm := r.engineFor(c).RiskManager(); rm != nil {
		resp["breaker"] = rm.Status()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleRiskLevel(c *gin.Context) {
	var req struct {
		Level string `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level, err := risk.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := r.engineFor(c).UpdateConfig(engine.ConfigPatch{RiskLevel: &level})
	logger.Infof("[api] risk level set ip=%s level=%s", c.ClientIP(), level)
	c.JSON(http.StatusOK, gin.H{"level": cfg.RiskLevel, "thresholds": risk.ThresholdsFor(cfg.RiskLevel)})
}

func (r *Router) handleRiskReset(c *gin.Context) {
	rm := r.engineFor(c).RiskManager()
	if rm == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "engine has not been started"})
		return
	}
	// Operator resets bypass the cooldown window.
	if err := rm.ResetCircuitBreaker(true); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.Warnf("[api] circuit breaker manually reset ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, rm.Status())
}

// handleSignalPreview computes a signal on demand without acting on it.
func (r *Router) handleSignalPreview(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	cfg := r.engineFor(c).GetConfig()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	now := time.Now()
	bars, err := r.Gateway.GetBars(ctx, symbol, cfg.BarTimeframe, now.AddDate(0, 0, -cfg.HistoryDays), now)
	if err != nil {
		logger.Errorf("[api] signal preview bars failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	sig, err := r.Signals.Generate(ctx, signal.Request{Symbol: symbol, Bars: bars, TTL: cfg.SignalTTL})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, signal.ErrInsufficientData) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (r *Router) handleAccount(c *gin.Context) {
	account, err := r.Gateway.GetAccount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}

func (r *Router) handlePositions(c *gin.Context) {
	positions, err := r.Gateway.GetPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *Router) handleClosePosition(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	pct, _ := strconv.ParseFloat(c.DefaultQuery("pct", "100"), 64)
	if pct <= 0 || pct > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pct must be in (0, 100]"})
		return
	}
	order, err := r.Gateway.ClosePosition(c.Request.Context(), symbol, pct)
	if err != nil {
		logger.Errorf("[api] close position failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] position close ip=%s symbol=%s pct=%.1f order=%s", c.ClientIP(), symbol, pct, order.BrokerID)
	c.JSON(http.StatusOK, order)
}

func (r *Router) handleCloseAll(c *gin.Context) {
	logger.Warnf("[api] close all positions ip=%s", c.ClientIP())
	results, err := r.Gateway.CloseAllPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "closed": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": results})
}

func (r *Router) handleOrders(c *gin.Context) {
	status := strings.ToLower(c.DefaultQuery("status", "open"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	orders, err := r.Gateway.GetOrders(c.Request.Context(), types.OrderFilter{Status: status, Limit: limit})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

type submitOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Qty        string  `json:"qty"`
	LimitPrice *string `json:"limit_price,omitempty"`
}

// handleSubmitOrder is the manual escape hatch; it goes straight to the
// broker and is not risk-gated.
func (r *Router) handleSubmitOrder(c *gin.Context) {
	var body submitOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := body.toOrderRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := r.Gateway.SubmitOrder(c.Request.Context(), req)
	if err != nil {
		logger.Errorf("[api] manual order failed ip=%s symbol=%s err=%v", c.ClientIP(), req.Symbol, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] manual order ip=%s %s %s x%s order=%s", c.ClientIP(), req.Side, req.Symbol, req.Qty, order.BrokerID)
	c.JSON(http.StatusOK, order)
}

func (r *Router) handleCancelOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("id"))
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order id is required"})
		return
	}
	if err := r.Gateway.CancelOrder(c.Request.Context(), orderID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] order canceled ip=%s order=%s", c.ClientIP(), orderID)
	c.JSON(http.StatusOK, gin.H{"status": "canceled", "order_id": orderID})
}

func (r *Router) handleClock(c *gin.Context) {
	clock, err := r.Gateway.IsMarketOpen(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, clock)
}

func (r *Router) handleSnapshot(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	quote, err := r.Gateway.GetSnapshot(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quote)
}
