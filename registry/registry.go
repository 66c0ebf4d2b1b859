// Package registry is a process-wide mapping from string identifier
// (typically a binding URI) to the factory that builds the plugin
// behind it: an encoder, a decoder, a trust engine, or a metadata
// provider. It exists so a host application can enumerate or swap
// implementations by name instead of wiring Go types together by
// hand at every call site, the way chriskery-sso-idp's cmd package
// wires a service provider from a config file path read at init.
package registry

import (
	"fmt"
	"sync"

	"github.com/beevik/etree"
)

// Factory builds a plugin instance from a configuration fragment. The
// fragment is an *etree.Element rather than a typed struct because a
// single registry holds factories for unrelated plugin kinds
// (encoders, decoders, trust engines, providers), each with its own
// configuration shape; a factory parses however much of configDOM it
// needs with encoding/xml's Decoder.DecodeElement or a direct field
// walk.
type Factory func(configDOM *etree.Element) (interface{}, error)

// Registry is a concurrency-safe id -> Factory map. The zero value is
// not usable; construct one with New.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterFactory associates id with factory, overwriting whatever
// was previously registered under id. Registration is expected at
// process init; writes after init are permitted but rare, so the same
// RWMutex that guards reads also guards this.
func (r *Registry) RegisterFactory(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// Unregister removes the factory registered under id, if any.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, id)
}

// NewPlugin looks up id and calls its factory with configDOM,
// returning an error if no factory is registered under id.
func (r *Registry) NewPlugin(id string, configDOM *etree.Element) (interface{}, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("saml: registry: no factory registered for %q", id)
	}
	return factory(configDOM)
}

// IDs returns every registered identifier, in no particular order.
// Used to enumerate the bindings and decoders a process supports at
// startup.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}

// Has reports whether a factory is registered under id.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// Default is the process-wide registry most hosts use directly,
// mirroring the single shared registry a plugin-registry contract
// implies; hosts that want isolated registries (e.g. per-tenant
// configuration) can construct their own with New instead.
var Default = New()
