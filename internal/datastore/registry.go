package datastore

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/retrieval/internal/domain"
)

// Registry holds the named store handles built at startup. It is
// immutable after construction and safe for concurrent reads.
type Registry struct {
	stores      map[string]Store
	defaultName string
}

// NewRegistry creates a registry whose empty-name lookups resolve to
// defaultName.
func NewRegistry(defaultName string) *Registry {
	return &Registry{
		stores:      make(map[string]Store),
		defaultName: defaultName,
	}
}

// Register adds a named store. Registering a duplicate name is an error.
func (r *Registry) Register(name string, s Store) error {
	if name == "" {
		return fmt.Errorf("store name is required")
	}
	if _, ok := r.stores[name]; ok {
		return fmt.Errorf("store %q already registered", name)
	}
	r.stores[name] = s
	return nil
}

// Resolve returns the store for name; an empty name selects the
// default store.
func (r *Registry) Resolve(name string) (Store, error) {
	if name == "" {
		name = r.defaultName
	}
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("store %q: %w", name, domain.ErrStoreNotFound)
	}
	return s, nil
}

// DefaultName returns the name of the default store.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// Names lists registered store names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.stores))
	for n := range r.stores {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
