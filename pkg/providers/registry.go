// Package providers hosts the resource providers and the registry that
// routes resource types to them. A provider claims a type prefix (for
// example "mem" or "azure") and handles every type under it.
package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

// Registry maps resource type prefixes to providers. It implements
// engine.ProviderResolver. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]engine.Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]engine.Provider)}
}

// Register claims a type prefix for a provider. Registering an already
// claimed prefix fails.
func (r *Registry) Register(prefix string, provider engine.Provider) error {
	if prefix == "" {
		return engine.NewPermanentError("provider prefix must not be empty", nil).
			WithCode(engine.ErrCodeSchema)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[prefix]; exists {
		return engine.NewPermanentError(
			fmt.Sprintf("provider prefix %q already registered", prefix), nil).
			WithCode(engine.ErrCodeAlreadyExists)
	}
	r.providers[prefix] = provider
	return nil
}

// Resolve returns the provider claiming the type's prefix. A resource type
// "azure.vnet" resolves through the "azure" prefix.
func (r *Registry) Resolve(resourceType string) (engine.Provider, error) {
	prefix, _, ok := strings.Cut(resourceType, ".")
	if !ok {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("malformed resource type %q, want \"prefix.kind\"", resourceType), nil).
			WithCode(engine.ErrCodeSchema)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[prefix]
	if !ok {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("no provider registered for type %q", resourceType), nil).
			WithCode(engine.ErrCodeSchema)
	}
	return provider, nil
}

// Prefixes returns the registered type prefixes in sorted order.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefixes := make([]string, 0, len(r.providers))
	for prefix := range r.providers {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
