package broker

import (
	"context"
	"sync"
	"time"

	"tradepilot/internal/types"
)

// StateCache holds the latest account and position snapshots for one
// account. It is eventually consistent: stream events and polled refreshes
// both land here, and risk-sensitive callers must Refresh immediately before
// deciding so no decision is made against state older than the last refresh.
type StateCache struct {
	gateway Gateway

	mu        sync.RWMutex
	account   *types.AccountSnapshot
	positions []types.PositionSnapshot
	refreshed time.Time
}

func NewStateCache(gw Gateway) *StateCache {
	return &StateCache{gateway: gw}
}

// Refresh pulls fresh account and position snapshots from the broker and
// replaces the cached copies atomically.
func (c *StateCache) Refresh(ctx context.Context) (*types.AccountSnapshot, []types.PositionSnapshot, error) {
	account, err := c.gateway.GetAccount(ctx)
	if err != nil {
		return nil, nil, err
	}
	positions, err := c.gateway.GetPositions(ctx)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	c.account = account
	c.positions = positions
	c.refreshed = time.Now()
	c.mu.Unlock()
	return account, positions, nil
}

// Latest returns the cached snapshots without touching the broker. The
// account is nil until the first refresh.
func (c *StateCache) Latest() (*types.AccountSnapshot, []types.PositionSnapshot, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	positions := make([]types.PositionSnapshot, len(c.positions))
	copy(positions, c.positions)
	return c.account, positions, c.refreshed
}

// MarkDirty is called by the trade-update stream when an order event lands;
// the cached book is stale until the next refresh. Cache consumers always
// refresh before acting, so invalidation here is just the timestamp reset.
func (c *StateCache) MarkDirty() {
	c.mu.Lock()
	c.refreshed = time.Time{}
	c.mu.Unlock()
}
