package saga

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps stable declaration keys to declarations so snapshots can be
// resolved back to code after a restart.
type Registry struct {
	mu    sync.RWMutex
	decls map[string]*Declaration
}

// DefaultRegistry is the process-wide registry used when none is configured.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{decls: make(map[string]*Declaration)}
}

// Register adds d under its source entry point. Registering the same declaration
// twice is a no-op; a different declaration under a used key is an error.
func (r *Registry) Register(d *Declaration) error {
	if d == nil {
		return fmt.Errorf("declaration cannot be nil")
	}
	key := d.source.EntryPoint
	if key == "" {
		return fmt.Errorf("declaration %q has no entry point", d.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.decls[key]; ok {
		if existing == d {
			return nil
		}
		return fmt.Errorf("%s: %w", key, ErrDuplicateDeclaration)
	}
	r.decls[key] = d
	return nil
}

// MustRegister is Register that panics on error, for package-level declarations.
func (r *Registry) MustRegister(decls ...*Declaration) {
	for _, d := range decls {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the declaration registered under key.
func (r *Registry) Lookup(key string) (*Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decls[key]
	return d, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.decls))
	for k := range r.decls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
