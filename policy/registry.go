package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps action names to policies. Register everything, then call
// [Registry.Freeze]; a frozen registry rejects further registration.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
	frozen   bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// Register adds action with policy p. The block duration defaults to twice
// the window when zero.
func (r *Registry) Register(action string, p Policy) error {
	if action == "" {
		return errors.New("action name cannot be empty")
	}
	if strings.Contains(action, ":") {
		return fmt.Errorf("action name %q must not contain ':'", action)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("action %q: %w", action, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}
	if _, exists := r.policies[action]; exists {
		return fmt.Errorf("action %q already registered", action)
	}

	r.policies[action] = p.Normalize()
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether [Registry.Freeze] has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the policy registered for action, or [ErrUnknownAction].
func (r *Registry) Lookup(action string) (Policy, error) {
	if r == nil {
		return Policy{}, ErrUnknownAction
	}

	r.mu.RLock()
	p, ok := r.policies[action]
	r.mu.RUnlock()

	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return p, nil
}

// Actions returns the registered action names in sorted order.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.policies))
	for name := range r.policies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FromMap builds a frozen registry from a configuration table.
func FromMap(policies map[string]Policy) (*Registry, error) {
	r := NewRegistry()
	for action, p := range policies {
		if err := r.Register(action, p); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}
