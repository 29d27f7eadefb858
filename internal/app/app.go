// Package app is the composition root: it builds the broker gateway, audit
// store, engine registry, and HTTP server from configuration and runs them
// under one errgroup.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradepilot/internal/advisory"
	"tradepilot/internal/broker"
	"tradepilot/internal/config"
	"tradepilot/internal/engine"
	"tradepilot/internal/logger"
	"tradepilot/internal/signal"
	"tradepilot/internal/store"
	"tradepilot/internal/store/gormstore"
	apihttp "tradepilot/internal/transport/http/api"
)

// App holds the built system, not yet running.
type App struct {
	cfg        *config.Config
	configPath string

	defaultAccount string

	gateway  *broker.Alpaca
	cache    *broker.StateCache
	signals  *signal.Generator
	audit    store.AuditStore
	registry *engine.Registry
	server   *apihttp.Server
}

// New builds the application from configuration. The broker connection is
// verified here so a bad credential fails fast instead of at the first cycle.
func New(ctx context.Context, cfg *config.Config, configPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	gateway := broker.NewAlpaca(broker.Options{
		APIKey:      cfg.Broker.APIKey,
		APISecret:   cfg.Broker.APISecret,
		BaseURL:     cfg.Broker.BaseURL,
		DataBaseURL: cfg.Broker.DataBaseURL,
		Feed:        cfg.Broker.Feed,
		Paper:       cfg.Broker.Paper,
	})
	account, err := gateway.Verify(ctx)
	if err != nil {
		return nil, err
	}

	var refiner signal.Refiner
	if cfg.Advisory.Enabled {
		refiner = advisory.NewClient(
			cfg.Advisory.BaseURL,
			cfg.Advisory.APIKey,
			cfg.Advisory.Model,
			time.Duration(cfg.Advisory.TimeoutSeconds)*time.Second,
			cfg.Advisory.MaxRetries,
		)
		logger.Infof("advisory refinement enabled: model=%s", cfg.Advisory.Model)
	} else {
		logger.Infof("advisory refinement disabled, signals stay quantitative")
	}
	signals := signal.NewGenerator(refiner)

	var audit store.AuditStore
	if cfg.Store.Path != "" {
		gs, err := gormstore.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		audit = gs
		logger.Infof("audit store ready at %s", cfg.Store.Path)
	} else {
		audit = store.Nop{}
		logger.Warnf("audit store disabled, signals and orders will not be persisted")
	}

	cache := broker.NewStateCache(gateway)
	cooldown := time.Duration(cfg.Risk.CooldownSeconds) * time.Second
	engineCfg := engine.ConfigFrom(cfg.Engine)
	registry := engine.NewRegistry(func(accountID string) *engine.Engine {
		return engine.New(engine.Deps{
			AccountID: accountID,
			Gateway:   gateway,
			Cache:     cache,
			Signals:   signals,
			Audit:     audit,
			Cooldown:  cooldown,
		}, engineCfg)
	})

	defaultAccount := cfg.Engine.AccountID
	if defaultAccount == "" {
		defaultAccount = account.ID
	}
	router := apihttp.NewRouter(registry, gateway, cache, signals, defaultAccount)
	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Router: router,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:            cfg,
		configPath:     configPath,
		defaultAccount: defaultAccount,
		gateway:        gateway,
		cache:          cache,
		signals:        signals,
		audit:          audit,
		registry:       registry,
		server:         server,
	}, nil
}

// Run serves until ctx is cancelled: HTTP API, broker trade-update stream,
// and the config watcher all live under one errgroup.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("operator API listening on %s", a.server.Addr())
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return a.consumeTradeUpdates(ctx)
	})

	if a.configPath != "" {
		if err := config.Watch(ctx, a.configPath, a.applyConfig); err != nil {
			logger.Warnf("config watcher not started: %v", err)
		}
	}

	err := group.Wait()
	a.registry.StopAll()
	if cerr := a.audit.Close(); cerr != nil {
		logger.Warnf("audit store close: %v", cerr)
	}
	return err
}

// consumeTradeUpdates feeds broker order events into the audit trail and
// invalidates the state cache. The stream reconnects with a backoff until
// ctx ends; engines keep cycling off polled state while it is down.
func (a *App) consumeTradeUpdates(ctx context.Context) error {
	backoff := time.Second
	for {
		err := a.gateway.StreamTradeUpdates(ctx, func(update broker.TradeUpdate) {
			a.cache.MarkDirty()
			logger.Infof("trade update: %s %s order=%s status=%s", update.Event, update.Symbol, update.OrderID, update.Status)
			if update.Status == "" {
				return
			}
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := a.audit.UpdateOrderStatus(saveCtx, update.OrderID, update.Status); serr != nil {
				logger.Warnf("order status update not persisted: order=%s err=%v", update.OrderID, serr)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		logger.Warnf("trade update stream ended, reconnecting in %s: %v", backoff, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// applyConfig pushes a reloaded file configuration onto the default engine.
// Only the engine-level knobs are hot-swappable; broker credentials and
// store paths need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	logger.SetLevel(cfg.App.LogLevel)
	accountID := cfg.Engine.AccountID
	if accountID == "" {
		accountID = a.defaultAccount
	}
	eng, err := a.registry.Get(accountID)
	if err != nil {
		return
	}
	next := engine.ConfigFrom(cfg.Engine)
	eng.UpdateConfig(engine.ConfigPatch{
		Symbols:   &next.Symbols,
		RiskLevel: &next.RiskLevel,
	})
}
