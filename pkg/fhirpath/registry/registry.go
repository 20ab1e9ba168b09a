// Package registry implements the function registry: the catalogue of
// built-in and user-registered FHIRPath functions, their metadata, and the
// caches that keep repeated type-applicability/completion queries cheap.
//
// Grounded on the teacher's funcs.Registry (a name -> FuncDef map behind a
// sync.RWMutex), extended with execution modes and the three caches this
// spec calls for.
package registry

import (
	"sync"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/diagnostics"
)

// ExecutionMode selects how a function's implementation is invoked.
type ExecutionMode int

const (
	// Sync functions run to completion on the calling goroutine.
	Sync ExecutionMode = iota
	// Async functions return a result via a channel/future and may block on
	// I/O (e.g. resolve() against a network-backed resolver).
	Async
	// SyncFirst functions have both a sync and async implementation; the
	// sync path is preferred when the supplied collaborators (model
	// provider, resolver) are themselves synchronous.
	SyncFirst
)

// Category groups functions for analyzer diagnostics and completion lists.
type Category string

const (
	CategoryExistence  Category = "existence"
	CategoryFiltering  Category = "filtering"
	CategorySubsetting Category = "subsetting"
	CategoryCombining  Category = "combining"
	CategoryConversion Category = "conversion"
	CategoryString     Category = "string"
	CategoryMath       Category = "math"
	CategoryTree       Category = "tree"
	CategoryTypes      Category = "types"
	CategoryTemporal   Category = "temporal"
	CategoryUtility    Category = "utility"
	CategoryFHIR       Category = "fhir"
)

// Metadata describes a function's shape for arity checking, analyzer
// diagnostics and IDE-style completion.
type Metadata struct {
	Name     string
	Category Category
	MinArgs  int
	MaxArgs  int // -1 means unbounded
	// TakesLambdaArgs marks functions (where, select, all, repeat, ...) whose
	// arguments must be evaluated per-item by the lambda evaluator rather
	// than eagerly before dispatch.
	TakesLambdaArgs bool
	// AppliesToAnyType reports whether the function is valid regardless of
	// the static input type (most are). When false, Applicable accepts any
	// non-empty context type and rejects an empty one; no per-function type
	// check is applied.
	AppliesToAnyType bool
}

// Entry is a single registered function: its metadata, execution mode, and
// implementation. Impl is an arbitrary value owned by the eval package (a
// registry.Registry must not import eval, so it is typed as interface{} and
// cast back by the caller); this mirrors the teacher's FuncDef/FuncImpl
// split between funcs and eval.
type Entry struct {
	Metadata      Metadata
	ExecutionMode ExecutionMode
	Impl          interface{}
}

// Stats reports registry and cache activity, exposed for introspection/
// observability the way the teacher's ExpressionCache exposes CacheStats.
type Stats struct {
	FunctionCount           int
	TypeCacheHits           int64
	TypeCacheMisses         int64
	CategoryCacheHits       int64
	CategoryCacheMisses     int64
	CompletionCacheHits     int64
	CompletionCacheMisses   int64
}

type typeCacheKey struct {
	function     string
	contextType  string
	isCollection bool
}

// Registry is the thread-safe function catalogue.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	cacheMu        sync.RWMutex
	typeCache      map[typeCacheKey]bool
	categoryCache  map[Category][]string
	completionCache map[string][]string

	stats Stats
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries:         make(map[string]*Entry),
		typeCache:       make(map[typeCacheKey]bool),
		categoryCache:   make(map[Category][]string),
		completionCache: make(map[string][]string),
	}
}

// Register adds a function entry and invalidates all caches (registration
// is rare relative to lookup, so a coarse invalidation keeps the hot path
// lock-cheap). Per §4.4, a name already registered fails with
// DuplicateFunction and leaves the existing entry active; an empty name
// fails with InvalidFunctionName. Register never silently overwrites.
func (r *Registry) Register(e Entry) error {
	if e.Metadata.Name == "" {
		return diagnostics.InvalidFunctionNameError()
	}

	r.mu.Lock()
	if _, exists := r.entries[e.Metadata.Name]; exists {
		r.mu.Unlock()
		return diagnostics.DuplicateFunctionError(e.Metadata.Name)
	}
	r.entries[e.Metadata.Name] = &e
	r.mu.Unlock()

	r.cacheMu.Lock()
	r.typeCache = make(map[typeCacheKey]bool)
	r.categoryCache = make(map[Category][]string)
	r.completionCache = make(map[string][]string)
	r.cacheMu.Unlock()
	return nil
}

// Get looks up a function by name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns every registered function name. Used by the analyzer to
// derive its whitelist live, instead of duplicating the function catalogue.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// ByCategory returns the (cached) list of function names in a category.
func (r *Registry) ByCategory(cat Category) []string {
	r.cacheMu.RLock()
	if names, ok := r.categoryCache[cat]; ok {
		r.cacheMu.RUnlock()
		r.recordCategoryHit()
		return names
	}
	r.cacheMu.RUnlock()
	r.recordCategoryMiss()

	r.mu.RLock()
	var names []string
	for name, e := range r.entries {
		if e.Metadata.Category == cat {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	r.cacheMu.Lock()
	r.categoryCache[cat] = names
	r.cacheMu.Unlock()
	return names
}

// Applicable reports (with caching) whether function is usable against a
// context of contextType, optionally a collection.
func (r *Registry) Applicable(function, contextType string, isCollection bool) bool {
	key := typeCacheKey{function: function, contextType: contextType, isCollection: isCollection}

	r.cacheMu.RLock()
	if v, ok := r.typeCache[key]; ok {
		r.cacheMu.RUnlock()
		r.recordTypeHit()
		return v
	}
	r.cacheMu.RUnlock()
	r.recordTypeMiss()

	e, ok := r.Get(function)
	result := ok && (e.Metadata.AppliesToAnyType || contextType != "")

	r.cacheMu.Lock()
	r.typeCache[key] = result
	r.cacheMu.Unlock()
	return result
}

// Completions returns (with caching) the function names applicable to a
// given context type, for IDE-style completion.
func (r *Registry) Completions(contextType string, isCollection bool) []string {
	cacheKey := contextType
	if isCollection {
		cacheKey += "[]"
	}

	r.cacheMu.RLock()
	if names, ok := r.completionCache[cacheKey]; ok {
		r.cacheMu.RUnlock()
		r.recordCompletionHit()
		return names
	}
	r.cacheMu.RUnlock()
	r.recordCompletionMiss()

	all := r.List()
	var out []string
	for _, name := range all {
		if r.Applicable(name, contextType, isCollection) {
			out = append(out, name)
		}
	}

	r.cacheMu.Lock()
	r.completionCache[cacheKey] = out
	r.cacheMu.Unlock()
	return out
}

// Stats returns a snapshot of registry/cache counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	count := len(r.entries)
	r.mu.RUnlock()

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	s := r.stats
	s.FunctionCount = count
	return s
}

func (r *Registry) recordTypeHit()        { r.cacheMu.Lock(); r.stats.TypeCacheHits++; r.cacheMu.Unlock() }
func (r *Registry) recordTypeMiss()       { r.cacheMu.Lock(); r.stats.TypeCacheMisses++; r.cacheMu.Unlock() }
func (r *Registry) recordCategoryHit()    { r.cacheMu.Lock(); r.stats.CategoryCacheHits++; r.cacheMu.Unlock() }
func (r *Registry) recordCategoryMiss()   { r.cacheMu.Lock(); r.stats.CategoryCacheMisses++; r.cacheMu.Unlock() }
func (r *Registry) recordCompletionHit()  { r.cacheMu.Lock(); r.stats.CompletionCacheHits++; r.cacheMu.Unlock() }
func (r *Registry) recordCompletionMiss() { r.cacheMu.Lock(); r.stats.CompletionCacheMisses++; r.cacheMu.Unlock() }
