// Package providers routes activity lookups to the upstream service a
// challenge is tracked against.
package providers

import (
	"context"
	"sort"
	"sync"

	"github.com/terra-clan/motify-engine/internal/progress"
)

// Registry manages activity providers by name. Lookups for unregistered
// providers go to the fallback.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]progress.ActivityProvider
	fallback  progress.ActivityProvider
}

// NewRegistry creates a new provider registry
func NewRegistry(fallback progress.ActivityProvider) *Registry {
	return &Registry{
		providers: make(map[string]progress.ActivityProvider),
		fallback:  fallback,
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(name string, provider progress.ActivityProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// Unregister removes a provider from the registry
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// Get retrieves a provider by name, falling back when none is registered
func (r *Registry) Get(name string) progress.ActivityProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[name]; ok {
		return p
	}
	return r.fallback
}

// List returns all registered provider names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FetchDailyActivity dispatches on the challenge's API provider, or its
// service type when no provider is set.
func (r *Registry) FetchDailyActivity(ctx context.Context, q progress.Query) (float64, error) {
	name := string(q.Provider)
	if name == "" {
		name = string(q.ServiceType)
	}
	return r.Get(name).FetchDailyActivity(ctx, q)
}
