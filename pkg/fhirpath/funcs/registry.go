// Package funcs provides FHIRPath function implementations.
package funcs

import (
	"sync"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/eval"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/registry"
)

// FuncDef is an alias for eval.FuncDef.
type FuncDef = eval.FuncDef

// Registry holds registered functions.
type Registry struct {
	funcs map[string]eval.FuncDef
	mu    sync.RWMutex
}

// globalRegistry is the default function registry.
var globalRegistry = NewRegistry()

// NewRegistry creates a new function registry.
func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]eval.FuncDef),
	}
	return r
}

// Register adds a function to the registry.
func (r *Registry) Register(def eval.FuncDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[def.Name] = def
}

// Get retrieves a function by name.
func (r *Registry) Get(name string) (eval.FuncDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has checks if a function exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// List returns all registered function names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// Global registry functions

// Register adds a function to the global registry.
func Register(def eval.FuncDef) {
	globalRegistry.Register(def)
}

// Get retrieves a function from the global registry.
func Get(name string) (eval.FuncDef, bool) {
	return globalRegistry.Get(name)
}

// Has checks if a function exists in the global registry.
func Has(name string) bool {
	return globalRegistry.Has(name)
}

// List returns all function names from the global registry.
func List() []string {
	return globalRegistry.List()
}

// GetRegistry returns the global registry.
func GetRegistry() *Registry {
	return globalRegistry
}

// LambdaFunctions aliases eval.LambdaFunctionNames, the set of functions
// whose arguments are FHIRPath expressions evaluated per-item rather than
// eagerly before dispatch (where, select, all, ...).
var LambdaFunctions = eval.LambdaFunctionNames

// categories classifies each builtin for the analyzer/registry.Registry
// bridge built by MetadataRegistry. Functions not listed default to
// CategoryUtility.
var categories = map[string]registry.Category{
	"empty": registry.CategoryExistence, "exists": registry.CategoryExistence,
	"all": registry.CategoryExistence, "allTrue": registry.CategoryExistence,
	"anyTrue": registry.CategoryExistence, "allFalse": registry.CategoryExistence,
	"anyFalse": registry.CategoryExistence, "count": registry.CategoryExistence,
	"distinct": registry.CategoryExistence, "isDistinct": registry.CategoryExistence,
	"subsetOf": registry.CategoryExistence, "supersetOf": registry.CategoryExistence,

	"where": registry.CategoryFiltering, "select": registry.CategoryFiltering,
	"repeat": registry.CategoryFiltering, "repeatAll": registry.CategoryFiltering,
	"ofType": registry.CategoryFiltering, "sort": registry.CategoryFiltering,
	"aggregate": registry.CategoryFiltering, "iif": registry.CategoryFiltering,
	"trace": registry.CategoryFiltering, "defineVariable": registry.CategoryFiltering,

	"first": registry.CategorySubsetting, "last": registry.CategorySubsetting,
	"tail": registry.CategorySubsetting, "skip": registry.CategorySubsetting,
	"take": registry.CategorySubsetting, "single": registry.CategorySubsetting,
	"intersect": registry.CategorySubsetting, "exclude": registry.CategorySubsetting,

	"combine": registry.CategoryCombining, "union": registry.CategoryCombining,

	"toInteger": registry.CategoryConversion, "toDecimal": registry.CategoryConversion,
	"toString": registry.CategoryConversion, "toBoolean": registry.CategoryConversion,
	"toDate": registry.CategoryConversion, "toDateTime": registry.CategoryConversion,
	"toTime": registry.CategoryConversion, "toQuantity": registry.CategoryConversion,
	"convertsToInteger": registry.CategoryConversion, "convertsToDecimal": registry.CategoryConversion,
	"convertsToString": registry.CategoryConversion, "convertsToBoolean": registry.CategoryConversion,
	"convertsToDate": registry.CategoryConversion, "convertsToDateTime": registry.CategoryConversion,
	"convertsToTime": registry.CategoryConversion, "convertsToQuantity": registry.CategoryConversion,

	"upper": registry.CategoryString, "lower": registry.CategoryString, "trim": registry.CategoryString,
	"split": registry.CategoryString, "join": registry.CategoryString, "substring": registry.CategoryString,
	"startsWith": registry.CategoryString, "endsWith": registry.CategoryString, "contains": registry.CategoryString,
	"indexOf": registry.CategoryString, "replace": registry.CategoryString, "matches": registry.CategoryString,
	"replaceMatches": registry.CategoryString, "length": registry.CategoryString, "toChars": registry.CategoryString,

	"abs": registry.CategoryMath, "ceiling": registry.CategoryMath, "floor": registry.CategoryMath,
	"round": registry.CategoryMath, "truncate": registry.CategoryMath, "sqrt": registry.CategoryMath,
	"power": registry.CategoryMath, "exp": registry.CategoryMath, "ln": registry.CategoryMath,
	"log": registry.CategoryMath, "sum": registry.CategoryMath, "avg": registry.CategoryMath,
	"min": registry.CategoryMath, "max": registry.CategoryMath,

	"is": registry.CategoryTypes, "as": registry.CategoryTypes,
	"hasValue": registry.CategoryTypes, "getValue": registry.CategoryTypes,

	"children": registry.CategoryTree, "descendants": registry.CategoryTree,

	"today": registry.CategoryTemporal, "now": registry.CategoryTemporal, "timeOfDay": registry.CategoryTemporal,
	"year": registry.CategoryTemporal, "month": registry.CategoryTemporal, "day": registry.CategoryTemporal,
	"hour": registry.CategoryTemporal, "minute": registry.CategoryTemporal, "second": registry.CategoryTemporal,
	"millisecond": registry.CategoryTemporal,

	"resolve": registry.CategoryFHIR, "extension": registry.CategoryFHIR,
	"hasExtension": registry.CategoryFHIR, "getExtensionValue": registry.CategoryFHIR,
	"getReferenceKey": registry.CategoryFHIR,
}

// asyncCapable lists functions whose implementation may block on I/O
// (resolve() calls out to a Resolver that can be network-backed) and so
// advertise registry.SyncFirst rather than registry.Sync: the dispatcher
// prefers the synchronous call but falls back per §4.4 when the caller
// requires async and the collaborator can't honor it synchronously.
var asyncCapable = map[string]bool{
	"resolve": true,
}

func executionModeFor(name string) registry.ExecutionMode {
	if asyncCapable[name] {
		return registry.SyncFirst
	}
	return registry.Sync
}

// MetadataRegistry builds a registry.Registry snapshot of every currently
// registered function, for the analyzer's live whitelist/arity lookups. It
// is rebuilt on demand rather than kept in lockstep with every Register
// call, since function registration happens once at init() time and the
// analyzer only needs a point-in-time view.
func MetadataRegistry() *registry.Registry {
	out := registry.New()
	for _, name := range globalRegistry.List() {
		def, _ := globalRegistry.Get(name)
		cat, ok := categories[name]
		if !ok {
			cat = registry.CategoryUtility
		}
		// globalRegistry.List() enumerates a map, so every name here is
		// already unique and non-empty; Register cannot fail in this loop.
		_ = out.Register(registry.Entry{
			Metadata: registry.Metadata{
				Name:             name,
				Category:         cat,
				MinArgs:          def.MinArgs,
				MaxArgs:          def.MaxArgs,
				TakesLambdaArgs:  LambdaFunctions[name],
				AppliesToAnyType: true,
			},
			ExecutionMode: executionModeFor(name),
			Impl:          def.Fn,
		})
	}
	return out
}
