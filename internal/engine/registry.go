package engine

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownAccount is returned by Registry lookups for accounts that have
// no engine instance.
var ErrUnknownAccount = errors.New("no engine for account")

// Registry maps account IDs to engine instances. Engines are created through
// the injected factory on first use; there are no package-level singletons.
type Registry struct {
	mu      sync.Mutex
	build   func(accountID string) *Engine
	engines map[string]*Engine
}

func NewRegistry(build func(accountID string) *Engine) *Registry {
	return &Registry{
		build:   build,
		engines: make(map[string]*Engine),
	}
}

// Get returns the engine for an account, or ErrUnknownAccount.
func (r *Registry) Get(accountID string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eng, ok := r.engines[accountID]
	if !ok {
		return nil, ErrUnknownAccount
	}
	return eng, nil
}

// GetOrCreate returns the engine for an account, building one on first use.
func (r *Registry) GetOrCreate(accountID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if eng, ok := r.engines[accountID]; ok {
		return eng
	}
	eng := r.build(accountID)
	r.engines[accountID] = eng
	return eng
}

// AccountIDs lists known accounts in stable order.
func (r *Registry) AccountIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopAll cooperatively stops every engine; used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, eng := range r.engines {
		engines = append(engines, eng)
	}
	r.mu.Unlock()
	for _, eng := range engines {
		_ = eng.Stop()
	}
}
