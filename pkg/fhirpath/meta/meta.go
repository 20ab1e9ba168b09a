// Package meta carries the per-value metadata (FHIR type, originating
// resource type, canonical path, and collection index) that the evaluator
// propagates alongside every value so that diagnostics, type operators and
// the resolve()/ofType() family of functions can answer "what is this and
// where did it come from" without re-deriving it from scratch.
package meta

import (
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/path"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// Metadata describes the provenance of a single value.
type Metadata struct {
	// FHIRType is the resolved FHIR type name (e.g. "HumanName", "string"),
	// when known. Empty when the resolver could not determine it.
	FHIRType string
	// ResourceType is the root resource type the value was navigated from
	// (e.g. "Patient"), propagated unchanged through member navigation.
	ResourceType string
	// Path is the canonical path from the root resource to this value.
	Path path.Path
	// HasIndex reports whether Index is meaningful (the value came from a
	// specific position in a repeating element).
	HasIndex bool
	Index    int
}

// WithPath returns a copy of m with Path replaced.
func (m Metadata) WithPath(p path.Path) Metadata {
	m.Path = p
	return m
}

// WithIndex returns a copy of m tagged with a collection index.
func (m Metadata) WithIndex(i int) Metadata {
	m.HasIndex = true
	m.Index = i
	m.Path = m.Path.AppendIndex(i)
	return m
}

// WithFHIRType returns a copy of m with FHIRType replaced.
func (m Metadata) WithFHIRType(t string) Metadata {
	m.FHIRType = t
	return m
}

// WithResourceType returns a copy of m with ResourceType replaced. Used by
// where()'s resourceType-filter optimization to re-tag matched items once
// their concrete resource type is known from the predicate itself.
func (m Metadata) WithResourceType(t string) Metadata {
	m.ResourceType = t
	return m
}

// Child derives the metadata for a named property navigated off of m.
func (m Metadata) Child(property, fhirType string) Metadata {
	return Metadata{
		FHIRType:     fhirType,
		ResourceType: m.ResourceType,
		Path:         m.Path.AppendProperty(property),
	}
}

// Wrapped pairs a value with its Metadata. It is the unit of currency inside
// the evaluator; plain types.Collection is used only at the edges (function
// arguments, public API return values) where metadata is not observable.
type Wrapped struct {
	Value    types.Value
	Metadata Metadata
}

// Collection is an ordered list of Wrapped values — the metadata-carrying
// counterpart of types.Collection.
type Collection []Wrapped

// Unwrap discards metadata, returning the plain value collection in order.
func (c Collection) Unwrap() types.Collection {
	out := make(types.Collection, len(c))
	for i, w := range c {
		out[i] = w.Value
	}
	return out
}

// Wrap pairs every value in vs with the same base metadata, stamping each
// with its positional index when len(vs) > 1 (per FHIRPath's indexing rules
// for repeating elements).
func Wrap(vs types.Collection, base Metadata) Collection {
	out := make(Collection, len(vs))
	for i, v := range vs {
		m := base
		if len(vs) > 1 {
			m = base.WithIndex(i)
		}
		out[i] = Wrapped{Value: v, Metadata: m}
	}
	return out
}

// Single wraps exactly one value with the given metadata.
func Single(v types.Value, m Metadata) Collection {
	return Collection{{Value: v, Metadata: m}}
}

// Empty is the empty Wrapped collection.
func Empty() Collection { return Collection{} }
