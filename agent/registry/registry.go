package registry

import (
	"fmt"
	"strings"
	"sync"

	contractx "github.com/attachehq/attache/agent/contract"
)

// Entry binds a registered action to the adapter that executes it.
type Entry struct {
	Action  contractx.Action
	Adapter contractx.Adapter
}

// Registry is the static action table. It is built once at startup and
// read-only afterwards; the lock keeps concurrent readers safe regardless.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds one action owned by the given adapter. Duplicate names are
// a startup bug and fail with ErrDuplicateAction.
func (r *Registry) Register(a contractx.Action, owner contractx.Adapter) error {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return fmt.Errorf("%w: action name is empty", contractx.ErrInvalidConfig)
	}
	if owner == nil {
		return fmt.Errorf("%w: action %s has no adapter", contractx.ErrInvalidConfig, name)
	}
	a.Name = name
	if a.Service == "" {
		a.Service = owner.Service()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateAction, name)
	}
	r.entries[name] = Entry{Action: a, Adapter: owner}
	r.order = append(r.order, name)
	return nil
}

// Resolve returns the entry for name, or ErrActionNotFound.
func (r *Registry) Resolve(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[strings.TrimSpace(name)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", contractx.ErrActionNotFound, name)
	}
	return entry, nil
}

// List returns every registered action in registration order. The order is
// stable so the model sees an identical tool list on every turn.
func (r *Registry) List() []contractx.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contractx.Action, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Action)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Build assembles a registry from the given adapters, registering every
// action each one exposes and failing fast on the first conflict.
func Build(adapters ...contractx.Adapter) (*Registry, error) {
	reg := New()
	for _, ad := range adapters {
		if ad == nil {
			continue
		}
		for _, a := range ad.Actions() {
			if err := reg.Register(a, ad); err != nil {
				return nil, fmt.Errorf("register %s actions: %w", ad.Service(), err)
			}
		}
	}
	return reg, nil
}
