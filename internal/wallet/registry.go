package wallet

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the configured capabilities keyed by provider id. Every
// capability handed out is guarded.
type Registry struct {
	byID map[ProviderID]Capability
}

func NewRegistry() *Registry {
	return &Registry{byID: map[ProviderID]Capability{}}
}

func (r *Registry) Register(c Capability) {
	r.byID[normalizeProviderID(string(c.ID()))] = Guard(c)
}

func (r *Registry) Lookup(id ProviderID) (Capability, bool) {
	c, ok := r.byID[normalizeProviderID(string(id))]
	return c, ok
}

// Available returns the ids of registered providers whose probe passes,
// sorted for stable output.
func (r *Registry) Available() []ProviderID {
	out := make([]ProviderID, 0, len(r.byID))
	for id, c := range r.byID {
		if c.Probe() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known returns all registered provider ids regardless of probe state.
func (r *Registry) Known() []ProviderID {
	out := make([]ProviderID, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ParseProviderID(input string) (ProviderID, error) {
	norm := normalizeProviderID(input)
	if norm == "" {
		return "", fmt.Errorf("provider id is required")
	}
	return norm, nil
}

func normalizeProviderID(v string) ProviderID {
	return ProviderID(strings.ToLower(strings.TrimSpace(v)))
}
