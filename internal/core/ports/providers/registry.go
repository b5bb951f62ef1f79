package providers

import (
	"fmt"

	"github.com/moneywise/bank_sync/internal/apperrors"
)

// Registry holds the configured provider adapters, keyed by provider name.
// Adapter selection happens once at connection creation; afterwards the
// provider tag on the connection picks the adapter back out. Nothing above
// this package switches on provider identity.
type Registry struct {
	adapters map[string]ProviderAdapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...ProviderAdapter) *Registry {
	r := &Registry{adapters: make(map[string]ProviderAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for the provider name.
func (r *Registry) Get(provider string) (ProviderAdapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", apperrors.ErrNotFound, provider)
	}
	return a, nil
}
