// Package analyzer implements the Static Analyzer: it reads an ast.Node
// without executing it and reports diagnostics, warnings, suggestions,
// inferred types and complexity metrics. Grounded on the teacher's shape of
// running a tree-walking pass over an AST (see the CWBudde-go-dws semantic
// package for the type-switch-per-node-kind style this mirrors), adapted
// from a compiler's symbol-table pass to FHIRPath's simpler read-only
// property/function checks.
package analyzer

import (
	"fmt"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/ast"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/diagnostics"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/model"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/registry"
)

// Limits bounds the analysis; exceeding either emits a warning, not an error.
type Limits struct {
	// MaxDepth bounds property-access nesting (default 50).
	MaxDepth int
	// MaxComplexity bounds the estimated cost computed in the complexity
	// phase (default 1000).
	MaxComplexity int
}

// DefaultLimits returns the spec's default bounds.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 50, MaxComplexity: 1000}
}

// ComplexityMetrics is the output of phase 5.
type ComplexityMetrics struct {
	Cyclomatic       int
	MaxNestingDepth  int
	FunctionCalls    int
	PropertyAccesses int
	CollectionOps    int
	EstimatedCost    float64
}

// Report is the complete analysis result.
type Report struct {
	Diagnostics []*diagnostics.Diagnostic
	Warnings    []*diagnostics.Diagnostic
	Suggestions []string
	// TypeInfo maps a node's rendered path (best-effort, dotted member-access
	// chain) to its inferred type name; nodes the type resolver could not
	// place are omitted.
	TypeInfo   map[string]string
	Complexity ComplexityMetrics
	IsValid    bool
}

// collectionCategories marks the registry.Category values that phase 5
// counts as "collection operations" for the complexity/cyclomatic formula.
var collectionCategories = map[registry.Category]bool{
	registry.CategoryFiltering:  true,
	registry.CategorySubsetting: true,
	registry.CategoryCombining:  true,
	registry.CategoryExistence:  true,
}

// analyzer carries the per-run state threaded through all five phases.
type analyzer struct {
	reg      *registry.Registry
	provider model.Provider
	limits   Limits

	diags    []*diagnostics.Diagnostic
	warnings []*diagnostics.Diagnostic
	suggest  []string
	typeInfo map[string]string

	metrics ComplexityMetrics
	depth   int
}

// Analyze runs the five analysis phases over node and returns the
// accumulated report. It never panics or returns an error: structural
// problems are converted into Diagnostics, per the evaluator's own
// convert-don't-raise convention for this layer.
func Analyze(node ast.Node, reg *registry.Registry, provider model.Provider, limits Limits) Report {
	a := &analyzer{
		reg:      reg,
		provider: provider,
		limits:   limits,
		typeInfo: make(map[string]string),
	}

	// Phase 1: syntax/structure (known functions, arity, nesting depth).
	a.checkStructure(node, 0, "$")
	// Phase 2: type inference (best-effort, attaches a type per node). The
	// root context type is unknown until the expression itself names one
	// (the common "Patient.name.given" leading-resource-type convention,
	// recognized in inferType's *ast.Identifier case); property validation
	// is skipped against an unknown root rather than guessed at.
	a.inferType(node, "", "$")
	// Phase 3: property validation happens inline within inferType, since it
	// needs the same type-per-node walk to know what each property access is
	// rooted against.
	// Phase 4: semantics (argument-type checks for known functions).
	a.checkSemantics(node)
	// Phase 5: complexity.
	a.measureComplexity(node, 0)
	a.metrics.EstimatedCost = 10*float64(a.metrics.FunctionCalls) +
		2*float64(a.metrics.PropertyAccesses) +
		15*float64(a.metrics.CollectionOps) +
		1.5*float64(a.metrics.MaxNestingDepth) +
		5*float64(a.metrics.Cyclomatic)

	if a.limits.MaxComplexity > 0 && int(a.metrics.EstimatedCost) > a.limits.MaxComplexity {
		a.warnings = append(a.warnings, diagnostics.ComplexityError(a.limits.MaxComplexity, int(a.metrics.EstimatedCost)))
	}

	return Report{
		Diagnostics: a.diags,
		Warnings:    a.warnings,
		Suggestions: a.suggest,
		TypeInfo:    a.typeInfo,
		Complexity:  a.metrics,
		IsValid:     len(a.diags) == 0,
	}
}

func (a *analyzer) addError(d *diagnostics.Diagnostic) {
	a.diags = append(a.diags, d)
}

func (a *analyzer) addWarning(d *diagnostics.Diagnostic) {
	a.warnings = append(a.warnings, d.AsWarning())
}

// childNodes returns the direct ast.Node children of n, used by the
// depth-only phase-1 walk and the complexity walk so both stay in sync with
// the node set composite.go knows how to evaluate.
func childNodes(n ast.Node) []ast.Node {
	switch v := n.(type) {
	case *ast.Invocation:
		out := v.Args
		if v.Target != nil {
			out = append([]ast.Node{v.Target}, out...)
		}
		return out
	case *ast.MemberAccess:
		if v.Target == nil {
			return nil
		}
		return []ast.Node{v.Target}
	case *ast.Indexer:
		return []ast.Node{v.Target, v.Index}
	case *ast.Binary:
		return []ast.Node{v.Left, v.Right}
	case *ast.Unary:
		return []ast.Node{v.Operand}
	case *ast.Paren:
		return []ast.Node{v.Inner}
	default:
		return nil
	}
}

// Phase 1: syntax/structure -----------------------------------------------

func (a *analyzer) checkStructure(n ast.Node, depth int, path string) {
	if n == nil {
		return
	}
	if depth > a.limits.MaxDepth {
		a.addWarning(diagnostics.Newf(diagnostics.FP0200, "property nesting depth %d exceeds limit %d at %s", depth, a.limits.MaxDepth, path))
	}

	switch v := n.(type) {
	case *ast.Invocation:
		if a.reg != nil {
			entry, ok := a.reg.Get(v.Name)
			if !ok {
				a.addError(diagnostics.UnknownFunctionError(v.Name).WithPath(path))
				a.suggest = append(a.suggest, suggestName(v.Name, a.reg.List()))
			} else {
				want := entry.Metadata.MinArgs
				got := len(v.Args)
				if got < entry.Metadata.MinArgs || (entry.Metadata.MaxArgs >= 0 && got > entry.Metadata.MaxArgs) {
					a.addError(diagnostics.ArityError(v.Name, want, got).WithPath(path))
				}
			}
		}
		if v.Target != nil {
			a.checkStructure(v.Target, depth, path)
		}
		for i, arg := range v.Args {
			a.checkStructure(arg, depth, fmt.Sprintf("%s.%s[%d]", path, v.Name, i))
		}
	case *ast.MemberAccess:
		if v.Target != nil {
			a.checkStructure(v.Target, depth+1, path)
		}
	default:
		for _, c := range childNodes(n) {
			a.checkStructure(c, depth, path)
		}
	}
}

// ast_isLambda avoids an import cycle with package eval (which itself
// cannot import analyzer); the lambda function-name set is small and fixed,
// so it is inlined here rather than duplicated via a third shared package.
func ast_isLambda(name string) bool {
	switch name {
	case "where", "select", "all", "exists", "repeat", "repeatAll", "sort",
		"aggregate", "trace", "defineVariable", "iif", "ofType", "is", "as":
		return true
	}
	return false
}

// Phase 2 & 3: type inference + property validation -----------------------

func (a *analyzer) inferType(n ast.Node, contextType string, path string) string {
	if n == nil {
		return ""
	}
	switch v := n.(type) {
	case *ast.Literal:
		t := literalTypeName(v.Kind)
		a.typeInfo[path] = t
		return t
	case *ast.Identifier:
		if contextType == "" && a.provider != nil && a.provider.ResourceTypeExists(v.Name) {
			a.typeInfo[path] = v.Name
			return v.Name
		}
		t := a.resolveProperty(contextType, v.Name, path)
		a.typeInfo[path] = t
		return t
	case *ast.ThisInvocation:
		a.typeInfo[path] = contextType
		return contextType
	case *ast.MemberAccess:
		targetType := contextType
		if v.Target != nil {
			targetType = a.inferType(v.Target, contextType, path+".$target")
		}
		t := a.resolveProperty(targetType, v.Name, path)
		a.typeInfo[path] = t
		return t
	case *ast.Invocation:
		targetType := contextType
		if v.Target != nil {
			targetType = a.inferType(v.Target, contextType, path+".$target")
		}
		for i, arg := range v.Args {
			a.inferType(arg, contextType, fmt.Sprintf("%s.%s[%d]", path, v.Name, i))
		}
		t := returnTypeOf(v.Name, targetType)
		a.typeInfo[path] = t
		return t
	case *ast.Binary:
		a.inferType(v.Left, contextType, path+".$left")
		a.inferType(v.Right, contextType, path+".$right")
		t := binaryResultType(v.Op)
		a.typeInfo[path] = t
		return t
	case *ast.Unary:
		t := a.inferType(v.Operand, contextType, path+".$operand")
		if v.Op == ast.OpNot {
			t = "Boolean"
		}
		a.typeInfo[path] = t
		return t
	case *ast.Paren:
		t := a.inferType(v.Inner, contextType, path)
		return t
	case *ast.Indexer:
		t := a.inferType(v.Target, contextType, path+".$target")
		a.inferType(v.Index, contextType, path+".$index")
		a.typeInfo[path] = t
		return t
	default:
		a.typeInfo[path] = contextType
		return contextType
	}
}

// resolveProperty performs phase 3's property validation: it asks the model
// provider whether property exists on fromType, emitting a diagnostic with
// an edit-distance-based suggestion when it does not.
func (a *analyzer) resolveProperty(fromType, property, path string) string {
	if a.provider == nil || fromType == "" {
		return ""
	}
	et, ok := a.provider.ResolvePropertyType(fromType, property)
	if !ok {
		a.addError(diagnostics.PropertyNotFoundError(fromType, property).WithPath(path))
		if names := a.provider.Properties(fromType); len(names) > 0 {
			if best, ok := closest(property, names); ok {
				a.suggest = append(a.suggest, fmt.Sprintf("%s: did you mean %q?", path, best))
			}
		}
		return ""
	}
	if et.IsArray {
		a.typeInfo[path+".$isArray"] = "true"
	}
	return et.Name
}

func literalTypeName(k ast.LiteralKind) string {
	switch k {
	case ast.LiteralBoolean:
		return "Boolean"
	case ast.LiteralString:
		return "String"
	case ast.LiteralInteger:
		return "Integer"
	case ast.LiteralDecimal:
		return "Decimal"
	case ast.LiteralDate:
		return "Date"
	case ast.LiteralDateTime:
		return "DateTime"
	case ast.LiteralTime:
		return "Time"
	case ast.LiteralQuantity:
		return "Quantity"
	default:
		return ""
	}
}

func binaryResultType(op ast.BinaryOp) string {
	switch op {
	case ast.OpEq, ast.OpNeq, ast.OpEquiv, ast.OpNotEquiv,
		ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte,
		ast.OpAnd, ast.OpOr, ast.OpXor, ast.OpImplies,
		ast.OpIn, ast.OpContains, ast.OpIs:
		return "Boolean"
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpIntDiv, ast.OpMod:
		return ""
	case ast.OpConcat:
		return "String"
	default:
		return ""
	}
}

// returnTypeOf is a best-effort guess at a builtin function's result type,
// covering the handful the analyzer can say anything useful about; unknown
// functions report "" (unresolved) rather than guessing.
func returnTypeOf(name, targetType string) string {
	switch name {
	case "count":
		return "Integer"
	case "empty", "exists", "all", "allTrue", "anyTrue", "allFalse", "anyFalse",
		"isDistinct", "subsetOf", "supersetOf", "hasValue", "startsWith",
		"endsWith", "contains", "matches":
		return "Boolean"
	case "toString", "upper", "lower", "trim", "substring", "replace", "join":
		return "String"
	case "toInteger":
		return "Integer"
	case "toDecimal":
		return "Decimal"
	case "toBoolean":
		return "Boolean"
	case "where", "select", "distinct", "repeat", "repeatAll", "sort", "tail",
		"skip", "take", "intersect", "exclude", "combine", "union", "children",
		"descendants", "ofType":
		return targetType
	case "first", "last", "single":
		return targetType
	default:
		return ""
	}
}

// Phase 4: semantics --------------------------------------------------------

// argTypeExpectations lists the FHIRPath System type each positional argument
// of a known function must satisfy; functions not listed are unconstrained.
var argTypeExpectations = map[string][]string{
	"substring":  {"Integer", "Integer"},
	"indexOf":    {"String"},
	"startsWith": {"String"},
	"endsWith":   {"String"},
	"contains":   {"String"},
	"replace":    {"String", "String"},
	"matches":    {"String"},
	"join":       {"String"},
	"round":      {"Integer"},
	"power":      {"Decimal"},
	"skip":       {"Integer"},
	"take":       {"Integer"},
}

func (a *analyzer) checkSemantics(n ast.Node) {
	if n == nil {
		return
	}
	if inv, ok := n.(*ast.Invocation); ok {
		expected := argTypeExpectations[inv.Name]
		for i, arg := range inv.Args {
			if i < len(expected) {
				if lit, ok := arg.(*ast.Literal); ok {
					if got := literalTypeName(lit.Kind); got != "" && got != expected[i] {
						a.addError(diagnostics.OperatorTypeError(fmt.Sprintf("%s arg %d", inv.Name, i), expected[i], got))
					}
				}
			}
		}
		if inv.Target != nil {
			a.checkSemantics(inv.Target)
		}
		for _, arg := range inv.Args {
			a.checkSemantics(arg)
		}
		return
	}
	for _, c := range childNodes(n) {
		a.checkSemantics(c)
	}
}

// Phase 5: complexity --------------------------------------------------------

func (a *analyzer) measureComplexity(n ast.Node, depth int) {
	if n == nil {
		return
	}
	if depth > a.metrics.MaxNestingDepth {
		a.metrics.MaxNestingDepth = depth
	}

	switch v := n.(type) {
	case *ast.MemberAccess:
		a.metrics.PropertyAccesses++
		a.measureComplexity(v.Target, depth+1)
		return
	case *ast.Identifier:
		a.metrics.PropertyAccesses++
		return
	case *ast.Invocation:
		a.metrics.FunctionCalls++
		if a.reg != nil {
			if entry, ok := a.reg.Get(v.Name); ok && collectionCategories[entry.Metadata.Category] {
				a.metrics.CollectionOps++
				a.metrics.Cyclomatic++
			}
		} else if ast_isLambda(v.Name) {
			a.metrics.CollectionOps++
			a.metrics.Cyclomatic++
		}
		if v.Target != nil {
			a.measureComplexity(v.Target, depth+1)
		}
		for _, arg := range v.Args {
			a.measureComplexity(arg, depth+1)
		}
		return
	case *ast.Binary:
		if v.Op == ast.OpAnd || v.Op == ast.OpOr || v.Op == ast.OpXor {
			a.metrics.Cyclomatic++
		}
		a.measureComplexity(v.Left, depth+1)
		a.measureComplexity(v.Right, depth+1)
		return
	}

	for _, c := range childNodes(n) {
		a.measureComplexity(c, depth+1)
	}
}
