package tripspec

import (
	"sort"
)

// RegistryBuilder collects specs prior to processing. It is not safe
// for concurrent use; the Registry it seals is.
type RegistryBuilder struct {
	specs  map[string]*Spec
	sealed bool
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{specs: map[string]*Spec{}}
}

// Register compiles and adds a spec. Fails with a *ConfigError if the
// spec is malformed or its route already has one.
func (b *RegistryBuilder) Register(rts RouteTripSpec) error {
	if b.sealed {
		return &ConfigError{RouteID: rts.RouteID, Err: ErrRegistrySealed}
	}

	spec, err := Compile(rts)
	if err != nil {
		return err
	}

	if _, found := b.specs[spec.routeID]; found {
		return configErrorf(spec.routeID, "route already has a trip spec")
	}
	b.specs[spec.routeID] = spec

	return nil
}

// Seal freezes the builder. Later calls to Register fail.
func (b *RegistryBuilder) Seal() *Registry {
	b.sealed = true
	return &Registry{specs: b.specs}
}

// Registry maps route IDs to compiled specs. Read only.
type Registry struct {
	specs map[string]*Spec
}

// Lookup is safe on a nil Registry, which has no specs.
func (r *Registry) Lookup(routeID string) (*Spec, bool) {
	if r == nil {
		return nil, false
	}
	spec, found := r.specs[routeID]
	return spec, found
}

// RouteIDs lists registered routes in lexical order.
func (r *Registry) RouteIDs() []string {
	if r == nil {
		return []string{}
	}
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.specs)
}
