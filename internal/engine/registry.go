package engine

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

type (
	// Orchestration is a deterministic workflow function. It must derive
	// everything from its input and the results it awaits through the
	// Context: no clocks, randomness, or I/O of its own
	Orchestration func(ctx *Context, input json.RawMessage) (any, error)

	// Registry maps orchestration names to their functions
	Registry struct {
		fns map[string]Orchestration
		mu  sync.RWMutex
	}
)

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		fns: map[string]Orchestration{},
	}
}

// Register adds a named orchestration
func (r *Registry) Register(name string, fn Orchestration) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: %q", ErrInvalidOrchestration, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fns[name]; ok {
		return fmt.Errorf("%w: %s", ErrOrchestrationExists, name)
	}
	r.fns[name] = fn
	return nil
}

// Get returns the orchestration registered under name
func (r *Registry) Get(name string) (Orchestration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered orchestration names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.fns))
}

// Typed adapts a function with concrete input and output types into an
// Orchestration
func Typed[In, Out any](fn func(*Context, In) (Out, error)) Orchestration {
	return func(ctx *Context, input json.RawMessage) (any, error) {
		var in In
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, err
			}
		}
		return fn(ctx, in)
	}
}
