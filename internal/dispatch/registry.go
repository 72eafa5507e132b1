package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

type (
	// WorkUnit is an atomic piece of business logic. Work units run at least
	// once per scheduled action, so they must be idempotent or free of side
	// effects
	WorkUnit func(ctx context.Context, input json.RawMessage) (any, error)

	// Registry maps work unit names to their implementations
	Registry struct {
		units map[string]WorkUnit
		mu    sync.RWMutex
	}
)

var (
	ErrWorkUnitExists  = errors.New("work unit already registered")
	ErrInvalidWorkUnit = errors.New("invalid work unit")
	ErrInvalidInput    = errors.New("invalid work unit input")
)

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		units: map[string]WorkUnit{},
	}
}

// Register adds a named work unit
func (r *Registry) Register(name string, fn WorkUnit) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: %q", ErrInvalidWorkUnit, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[name]; ok {
		return fmt.Errorf("%w: %s", ErrWorkUnitExists, name)
	}
	r.units[name] = fn
	return nil
}

// Get returns the work unit registered under name
func (r *Registry) Get(name string) (WorkUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.units[name]
	return fn, ok
}

// Names returns the registered work unit names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.units))
}

// Typed adapts a function with concrete input and output types into a
// WorkUnit
func Typed[In, Out any](fn func(context.Context, In) (Out, error)) WorkUnit {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var in In
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
		}
		return fn(ctx, in)
	}
}
