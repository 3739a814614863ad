package routing

import "fmt"

// Router resolves a caller-supplied "provider/model" string to the
// ProviderDetails that should serve it and the bare model name to forward.
type Router struct {
	table *Table
}

// NewRouter validates and wraps table. It enforces the StartupInvariant
// from spec.md §3/§7: the default provider identifier must be a key of the
// providers map, or the table is rejected outright so the service can
// refuse to start rather than silently dispatch to a missing provider.
func NewRouter(table *Table) (*Router, error) {
	if table == nil {
		return nil, fmt.Errorf("routing: table is required")
	}
	if table.DefaultProvider == "" {
		return nil, fmt.Errorf("routing: default provider is required")
	}
	if _, ok := table.Providers[table.DefaultProvider]; !ok {
		return nil, fmt.Errorf("routing: default provider %q is not a configured provider", table.DefaultProvider)
	}
	return &Router{table: table}, nil
}

// DetailsForModel implements spec.md §4.5's lookup: split the model string
// on its first '/'; if the prefix names a known provider, dispatch there
// with the remainder as the model; otherwise dispatch to the default
// provider with the model string unchanged.
func (r *Router) DetailsForModel(modelSpec string) (provider string, details ProviderDetails, model string) {
	prefix, rest := ParseModelSpec(modelSpec, r.table.Providers)
	if prefix != "" {
		return prefix, r.table.Providers[prefix], rest
	}
	return r.table.DefaultProvider, r.table.Providers[r.table.DefaultProvider], modelSpec
}

// DefaultDetails returns the default provider's identifier and details,
// used by the /models endpoint which has no per-request model to split on.
func (r *Router) DefaultDetails() (provider string, details ProviderDetails) {
	return r.table.DefaultProvider, r.table.Providers[r.table.DefaultProvider]
}

// Providers returns the set of configured provider identifiers.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.table.Providers))
	for name := range r.table.Providers {
		names = append(names, name)
	}
	return names
}
