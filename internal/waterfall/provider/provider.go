// Package provider holds the set of geocoding sources available to the
// cascade and consensus resolvers.
package provider

import (
	"sort"
	"sync"

	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

// Registry manages available sources keyed by adapter ID.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]geocode.Adapter
	order   []string
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]geocode.Adapter),
	}
}

// Register adds a source, replacing any previous source with the same ID.
func (r *Registry) Register(a geocode.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[a.ID()]; !exists {
		r.order = append(r.order, a.ID())
	}
	r.sources[a.ID()] = a
}

// Get returns a source by ID, or nil if not found.
func (r *Registry) Get(id string) geocode.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[id]
}

// List returns all registered source IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the sources in registration order.
func (r *Registry) All() []geocode.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]geocode.Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id])
	}
	return out
}

// Select returns the sources with the given IDs in the given order, skipping
// unknown IDs. An empty ids list selects everything.
func (r *Registry) Select(ids []string) []geocode.Adapter {
	if len(ids) == 0 {
		return r.All()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]geocode.Adapter, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.sources[id]; ok {
			out = append(out, a)
		}
	}
	return out
}
