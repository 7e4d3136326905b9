// Package runctx holds the per-run scratch values components pass between
// themselves during a workflow: the monitor interface chosen in S0, the
// target BSSID picked in S1, and so on. It is deliberately not the state
// store: the state store is what a run discovers about the network, the
// run context is what the run decided to do about it.
package runctx

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nexusdevtools/capgate/internal/core/ports"
	"github.com/nexusdevtools/capgate/internal/core/state"
)

// RunContext is a mutex-guarded key/value scope bound to a single run ID,
// with a reference to that run's state store.
type RunContext struct {
	mu     sync.RWMutex
	id     string
	values map[string]any
	store  *state.Store
}

// New creates a run context with a fresh run ID and a new state store.
func New() *RunContext {
	return &RunContext{
		id:     uuid.NewString(),
		values: make(map[string]any),
		store:  state.New(),
	}
}

// ID returns this run's unique identifier.
func (r *RunContext) ID() string { return r.id }

// State returns the run's state store as the ports.StateStore interface
// plugins and workflows depend on.
func (r *RunContext) State() ports.StateStore { return r.store }

// Store returns the concrete state store, for callers (workflows, main.go)
// that need direct access rather than the narrower ports interface.
func (r *RunContext) Store() *state.Store { return r.store }

var _ ports.RunContext = (*RunContext)(nil)

// Get returns a previously Set value and whether it was present.
func (r *RunContext) Get(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// GetString is a convenience wrapper around Get for the common case of
// string-valued scratch state (interface names, BSSIDs, SSIDs). It returns
// the zero value if the key is absent or not a string.
func (r *RunContext) GetString(key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set stores a value under key, overwriting any previous value.
func (r *RunContext) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

// Delete removes key, if present.
func (r *RunContext) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
}
