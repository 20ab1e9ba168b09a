package eval

import (
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/registry"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// FuncImpl is the signature every non-lambda built-in function implements:
// arguments have already been evaluated into plain collections by the time
// a FuncImpl runs. Lambda-taking functions (where, select, all, repeat,
// sort, aggregate, trace, defineVariable, iif, ofType, is, as) bypass this
// path entirely and are handled by the lambda evaluator, which needs the
// raw, unevaluated argument expressions instead.
type FuncImpl func(ctx *Context, input types.Collection, args []interface{}) (types.Collection, error)

// FuncDef describes a registered function's arity and implementation. Mode
// and AsyncFn feed dispatchFunc's §4.4 execution-mode branching; a FuncDef
// left at the zero Mode (registry.Sync) with no AsyncFn always dispatches
// synchronously, which is correct for the overwhelming majority of
// functions that do no I/O.
type FuncDef struct {
	Name    string
	MinArgs int
	MaxArgs int
	Fn      FuncImpl
	Mode    registry.ExecutionMode
	AsyncFn FuncImpl
}

// dispatchFunc implements §4.4's dispatch algorithm: branch on
// (execution_mode, prefer_sync) to pick the sync or async implementation,
// falling back per the SyncFirst rule and reporting
// ExecutionModeNotSupported when the requested mode has no usable path.
func dispatchFunc(ctx *Context, def FuncDef, input types.Collection, args []interface{}) (types.Collection, error) {
	preferSync := ctx.PreferSync()

	switch def.Mode {
	case registry.Async:
		// Async always runs the async path regardless of preference; this
		// engine has no separate "prefer_sync was hard-required" signal
		// beyond the Context.PreferSync() flag, so there is nothing further
		// to enforce here per §4.4's Async row.
		if def.AsyncFn == nil {
			return nil, ExecutionModeNotSupportedError(def.Name, "async")
		}
		return def.AsyncFn(ctx, input, args)

	case registry.SyncFirst:
		if preferSync {
			if def.Fn == nil {
				return nil, ExecutionModeNotSupportedError(def.Name, "sync")
			}
			result, err := def.Fn(ctx, input, args)
			if evalErr, ok := err.(*EvalError); ok && evalErr.Type == ErrExecutionModeNotSupported {
				if def.AsyncFn == nil {
					return nil, err
				}
				return def.AsyncFn(ctx, input, args)
			}
			return result, err
		}
		if def.AsyncFn == nil {
			return nil, ExecutionModeNotSupportedError(def.Name, "async")
		}
		return def.AsyncFn(ctx, input, args)

	default: // registry.Sync
		if def.Fn == nil {
			return nil, ExecutionModeNotSupportedError(def.Name, "sync")
		}
		return def.Fn(ctx, input, args)
	}
}

// FuncRegistry is the minimal lookup surface the composite evaluator needs;
// package funcs implements it.
type FuncRegistry interface {
	Get(name string) (FuncDef, bool)
}

// LambdaFunctionNames is the set of functions whose arguments are raw
// ast.Node expressions evaluated per-item (against a changing $this/$index)
// rather than eagerly evaluated once before dispatch. The composite
// evaluator consults this to route a call to the lambda evaluator instead
// of FuncImpl dispatch. Exported so package funcs (which cannot be imported
// here without a cycle) can reuse the same set for its registry.Registry
// bridge.
var LambdaFunctionNames = map[string]bool{
	"where": true, "select": true, "all": true, "exists": true,
	"repeat": true, "repeatAll": true, "sort": true, "aggregate": true,
	"trace": true, "defineVariable": true, "iif": true,
	"ofType": true, "is": true, "as": true,
}
