package fhirpath

import (
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/ast"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/eval"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/funcs"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// Expression represents a compiled FHIRPath expression: source text plus the
// parsed ast.Node tree the evaluator walks. Building the tree (lexing and
// parsing) is intentionally minimal here; see package ast's doc comment.
type Expression struct {
	source string
	tree   ast.Node
}

// metadataRegistry is a single point-in-time registry.Registry snapshot of
// every built-in function, shared by every evaluation that doesn't bring
// its own (e.g. for the static analyzer). Built once at package
// initialization, after package funcs' init() registrations have all run.
var metadataRegistry = funcs.MetadataRegistry()

// compile parses expr into an Expression.
func compile(expr string) (*Expression, error) {
	tree, err := ast.Parse(expr)
	if err != nil {
		return nil, eval.ParseError(err.Error())
	}
	return &Expression{source: expr, tree: tree}, nil
}

// Evaluate executes the expression against a JSON resource.
func (e *Expression) Evaluate(resource []byte) (types.Collection, error) {
	ctx := eval.NewContext(resource, metadataRegistry)
	return e.EvaluateWithContext(ctx)
}

// EvaluateWithContext executes the expression with a custom context.
func (e *Expression) EvaluateWithContext(ctx *eval.Context) (types.Collection, error) {
	evaluator := eval.NewEvaluator(ctx, funcs.GetRegistry())
	return evaluator.Evaluate(e.tree)
}

// String returns the original expression string.
func (e *Expression) String() string {
	return e.source
}
