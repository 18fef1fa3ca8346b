// File: internal/detection/registry.go
package detection

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry holds strategies in priority order.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
}

// NewRegistry creates a registry with the given strategies, highest priority first.
func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: append([]Strategy(nil), strategies...)}
}

// DefaultRegistry creates a registry with the built-in strategies.
func DefaultRegistry(opts Options, logger *zap.Logger) *Registry {
	return NewRegistry(BuiltinStrategies(opts, logger)...)
}

// All returns the strategies in priority order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Strategy(nil), r.strategies...)
}

// Get looks a strategy up by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.strategies {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Register appends a custom strategy at the lowest priority.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.strategies {
		if existing.Name() == s.Name() {
			return fmt.Errorf("strategy %q is already registered", s.Name())
		}
	}
	r.strategies = append(r.strategies, s)
	return nil
}

// Len is the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}
