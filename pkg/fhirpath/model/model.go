// Package model defines the Type Resolver contract: the external collaborator
// that knows the FHIR structure definitions (the concrete provider is out of
// scope for this engine, per spec). Both a synchronous and an asynchronous
// variant are defined so callers backed by a remote terminology/registry
// service can implement the one that fits.
package model

import "context"

// ElementType describes the resolved type of a property.
type ElementType struct {
	Name       string
	IsArray    bool
	IsBackbone bool
	// Polymorphic lists the concrete types a "value[x]"-style polymorphic
	// element may resolve to, empty for non-polymorphic elements.
	Polymorphic []string
}

// Provider resolves FHIR type information synchronously.
type Provider interface {
	// ResourceTypeExists reports whether name is a known resource type.
	ResourceTypeExists(name string) bool
	// NavigateTypedPath resolves the type reached by following property off
	// of a value of type fromType, returning ok=false if the property does
	// not exist on that type.
	NavigateTypedPath(fromType, property string) (ElementType, bool)
	// ResolvePropertyType is a convenience wrapper used by the analyzer; it
	// behaves like NavigateTypedPath but also accepts namespaced type names
	// (e.g. "FHIR.Patient").
	ResolvePropertyType(typeName, property string) (ElementType, bool)
	// StructureDefinition optionally exposes the raw structure definition
	// JSON for a type, for providers that have it; ok=false if unavailable.
	StructureDefinition(typeName string) (json []byte, ok bool)
	// Properties lists the known property names of typeName, for the
	// analyzer's "did you mean" suggestions; nil if the provider cannot
	// enumerate (as opposed to merely not finding) properties.
	Properties(typeName string) []string
}

// AsyncProvider is the asynchronous counterpart of Provider, for model
// providers backed by network calls (e.g. a remote terminology/registry
// service). The evaluator itself accepts only a Provider
// (eval.Context.SetModelProvider) and never calls AsyncProvider methods.
type AsyncProvider interface {
	ResourceTypeExists(ctx context.Context, name string) (bool, error)
	NavigateTypedPath(ctx context.Context, fromType, property string) (ElementType, bool, error)
	ResolvePropertyType(ctx context.Context, typeName, property string) (ElementType, bool, error)
}

// StaticProvider is a minimal in-memory Provider, sufficient for tests. It is
// not installed by default: with no provider configured, navigation falls
// back to structural inference. It is intentionally not a full FHIR
// structure-definition engine; real deployments supply their own Provider.
type StaticProvider struct {
	resourceTypes map[string]bool
	elements      map[string]map[string]ElementType
}

// NewStaticProvider builds a StaticProvider from a resourceType -> property
// -> ElementType table. Callers typically construct this table once from
// their own structure definitions and reuse it across evaluations.
func NewStaticProvider(resourceTypes []string, elements map[string]map[string]ElementType) *StaticProvider {
	rt := make(map[string]bool, len(resourceTypes))
	for _, t := range resourceTypes {
		rt[t] = true
	}
	if elements == nil {
		elements = map[string]map[string]ElementType{}
	}
	return &StaticProvider{resourceTypes: rt, elements: elements}
}

func (p *StaticProvider) ResourceTypeExists(name string) bool {
	return p.resourceTypes[name]
}

func (p *StaticProvider) NavigateTypedPath(fromType, property string) (ElementType, bool) {
	props, ok := p.elements[fromType]
	if !ok {
		return ElementType{}, false
	}
	et, ok := props[property]
	return et, ok
}

func (p *StaticProvider) ResolvePropertyType(typeName, property string) (ElementType, bool) {
	if idx := lastDot(typeName); idx >= 0 {
		typeName = typeName[idx+1:]
	}
	return p.NavigateTypedPath(typeName, property)
}

func (p *StaticProvider) StructureDefinition(string) ([]byte, bool) {
	return nil, false
}

func (p *StaticProvider) Properties(typeName string) []string {
	props, ok := p.elements[typeName]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(props))
	for name := range props {
		out = append(out, name)
	}
	return out
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
