package eval

import (
	"sort"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/ast"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/meta"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// Safety bounds for repeat()/repeatAll(), which can otherwise recurse
// unboundedly over cyclic or pathological resource graphs. Not present in
// the teacher, which has no equivalent recursive function; grounded on the
// general pattern of bounding tree-walk recursion seen across the pack's
// validator/navigation code.
const (
	maxRepeatIterations = 1000
	maxRepeatDepth      = 100
	maxRepeatTotalItems = 10000
	repeatStallWindow   = 5
)

// evalLambdaCall dispatches a lambda-taking function by name. Each handler
// evaluates its argument expression(s) per item against a Context whose
// $this/$index are scoped to that item, mirroring the teacher's per-item
// save/restore idiom but via WithThis/WithIndex instead of field mutation.
func (e *Evaluator) evalLambdaCall(name string, target meta.Collection, args []ast.Node) (meta.Collection, error) {
	switch name {
	case "where":
		return e.evalWhere(target, args)
	case "select":
		return e.evalSelect(target, args)
	case "all":
		return e.evalAll(target, args)
	case "exists":
		return e.evalExists(target, args)
	case "repeat":
		return e.evalRepeat(target, args, false)
	case "repeatAll":
		return e.evalRepeat(target, args, true)
	case "sort":
		return e.evalSort(target, args)
	case "aggregate":
		return e.evalAggregate(target, args)
	case "trace":
		return e.evalTrace(target, args)
	case "defineVariable":
		return e.evalDefineVariable(target, args)
	case "iif":
		return e.evalIif(target, args)
	case "ofType":
		if len(args) != 1 {
			return nil, InvalidArgumentsError("ofType", 1, len(args))
		}
		return e.evalOfType(target, args[0])
	case "is":
		if len(args) != 1 {
			return nil, InvalidArgumentsError("is", 1, len(args))
		}
		return e.typeCheckOrCast(target, args[0], false)
	case "as":
		if len(args) != 1 {
			return nil, InvalidArgumentsError("as", 1, len(args))
		}
		return e.typeCheckOrCast(target, args[0], true)
	}
	return nil, FunctionNotFoundError(name)
}

// perItem evaluates node once per item in items, against a Context whose
// $this is that single item and $index is its position.
func (e *Evaluator) perItem(items meta.Collection, node ast.Node) ([]meta.Collection, error) {
	results := make([]meta.Collection, len(items))
	for i, item := range items {
		itemCtx := e.ctx.WithThis(meta.Collection{item}).WithIndex(i)
		child := NewEvaluator(itemCtx, e.funcs)
		res, err := child.eval(node)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

func (e *Evaluator) evalWhere(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) != 1 {
		return nil, InvalidArgumentsError("where", 1, len(args))
	}
	retagType, retag := resourceTypeFilterPredicate(args[0])

	var result meta.Collection
	for i, item := range target {
		itemCtx := e.ctx.WithThis(meta.Collection{item}).WithIndex(i)
		child := NewEvaluator(itemCtx, e.funcs)
		res, err := child.eval(args[0])
		if err != nil {
			return nil, err
		}
		truthy, ok, err := res.Unwrap().IsTruthy()
		if err != nil {
			return nil, err
		}
		if ok && truthy {
			if retag {
				item.Metadata = item.Metadata.WithFHIRType(retagType).WithResourceType(retagType)
			}
			result = append(result, item)
		}
	}
	if result == nil {
		return meta.Empty(), nil
	}
	return result, nil
}

// resourceTypeFilterPredicate recognizes where()'s mandatory "aggressive
// optimization": a predicate shaped exactly like `resourceType = '<T>'`
// (in either operand order) names the concrete type of every item it
// matches, so matched items can be re-tagged fhir_type = resource_type = T
// without waiting for a model provider lookup.
func resourceTypeFilterPredicate(node ast.Node) (string, bool) {
	bin, ok := node.(*ast.Binary)
	if !ok || bin.Op != ast.OpEq {
		return "", false
	}
	if t, ok := resourceTypeEqOperand(bin.Left, bin.Right); ok {
		return t, true
	}
	if t, ok := resourceTypeEqOperand(bin.Right, bin.Left); ok {
		return t, true
	}
	return "", false
}

func resourceTypeEqOperand(identSide, literalSide ast.Node) (string, bool) {
	ident, ok := identSide.(*ast.Identifier)
	if !ok || ident.Name != "resourceType" {
		return "", false
	}
	lit, ok := literalSide.(*ast.Literal)
	if !ok || lit.Kind != ast.LiteralString {
		return "", false
	}
	s, ok := lit.Value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (e *Evaluator) evalSelect(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) != 1 {
		return nil, InvalidArgumentsError("select", 1, len(args))
	}
	var result meta.Collection
	for i, item := range target {
		itemCtx := e.ctx.WithThis(meta.Collection{item}).WithIndex(i)
		child := NewEvaluator(itemCtx, e.funcs)
		res, err := child.eval(args[0])
		if err != nil {
			return nil, err
		}
		result = append(result, res...)
	}
	if result == nil {
		return meta.Empty(), nil
	}
	return result, nil
}

func (e *Evaluator) evalAll(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) != 1 {
		return nil, InvalidArgumentsError("all", 1, len(args))
	}
	for i, item := range target {
		itemCtx := e.ctx.WithThis(meta.Collection{item}).WithIndex(i)
		child := NewEvaluator(itemCtx, e.funcs)
		res, err := child.eval(args[0])
		if err != nil {
			return nil, err
		}
		truthy, ok, err := res.Unwrap().IsTruthy()
		if err != nil {
			return nil, err
		}
		if !ok || !truthy {
			return e.plain(types.Collection{types.NewBoolean(false)}), nil
		}
	}
	return e.plain(types.Collection{types.NewBoolean(true)}), nil
}

func (e *Evaluator) evalExists(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) == 0 {
		return e.plain(types.Collection{types.NewBoolean(!target.Unwrap().Empty())}), nil
	}
	if len(args) != 1 {
		return nil, InvalidArgumentsError("exists", 1, len(args))
	}
	for i, item := range target {
		itemCtx := e.ctx.WithThis(meta.Collection{item}).WithIndex(i)
		child := NewEvaluator(itemCtx, e.funcs)
		res, err := child.eval(args[0])
		if err != nil {
			return nil, err
		}
		truthy, ok, err := res.Unwrap().IsTruthy()
		if err != nil {
			return nil, err
		}
		if ok && truthy {
			return e.plain(types.Collection{types.NewBoolean(true)}), nil
		}
	}
	return e.plain(types.Collection{types.NewBoolean(false)}), nil
}

// evalOfType filters target to items whose resolved FHIR type matches
// typeArg, per FHIRPath's ofType() function.
func (e *Evaluator) evalOfType(target meta.Collection, typeArg ast.Node) (meta.Collection, error) {
	dotted, ok := dottedTypeName(typeArg)
	if !ok {
		return nil, NewEvalError(ErrInvalidArguments, "ofType expects a type name")
	}
	var result meta.Collection
	for _, item := range target {
		actual := item.Metadata.FHIRType
		if actual == "" {
			actual = item.Value.Type()
		}
		if TypeMatches(actual, dotted) || TypeMatches(actual, bareTypeName(dotted)) {
			result = append(result, item)
		}
	}
	if result == nil {
		return meta.Empty(), nil
	}
	return result, nil
}

// evalRepeat implements repeat()/repeatAll(): a breadth-first, fixed-point
// traversal that repeatedly applies the projection to the frontier produced
// by the previous application, collecting every distinct node reached,
// until the frontier is empty. Hitting a safety bound, including
// repeatStallWindow consecutive rounds that add no new node, returns an
// InfiniteRecursionError. repeatAll additionally seeds the result with the
// original input items (repeat excludes them unless re-produced).
func (e *Evaluator) evalRepeat(target meta.Collection, args []ast.Node, includeSeed bool) (meta.Collection, error) {
	if len(args) != 1 {
		return nil, InvalidArgumentsError("repeat", 1, len(args))
	}
	projection := args[0]

	seen := make(map[string]bool, len(target))
	var result meta.Collection
	addResult := func(item meta.Wrapped) bool {
		key := item.Metadata.Path.String() + "\x00" + item.Value.String()
		if seen[key] {
			return false
		}
		seen[key] = true
		result = append(result, item)
		return true
	}

	if includeSeed {
		for _, item := range target {
			addResult(item)
		}
	}

	frontier := target
	totalItems := len(target)
	noNewStreak := 0
	depth := 0

	for iter := 0; ; iter++ {
		if iter >= maxRepeatIterations {
			return result, InfiniteRecursionError("max iterations", maxRepeatIterations)
		}
		if depth >= maxRepeatDepth {
			return result, InfiniteRecursionError("max depth", maxRepeatDepth)
		}
		if len(frontier) == 0 {
			break
		}
		projected, err := e.perItem(frontier, projection)
		if err != nil {
			return nil, err
		}
		depth++

		var next meta.Collection
		added := 0
		for _, items := range projected {
			for _, item := range items {
				next = append(next, item)
				if addResult(item) {
					added++
				}
			}
		}

		totalItems += len(next)
		if totalItems > maxRepeatTotalItems {
			return result, InfiniteRecursionError("max total items", maxRepeatTotalItems)
		}
		if added == 0 {
			noNewStreak++
			if noNewStreak >= repeatStallWindow {
				return result, InfiniteRecursionError("stall window", repeatStallWindow)
			}
		} else {
			noNewStreak = 0
		}
		frontier = next
	}

	if result == nil {
		return meta.Empty(), nil
	}
	return result, nil
}

// sortKeySpec pairs a sort-key expression with its direction; a nil node
// means "sort by the item's own value" (sort() called with no arguments).
type sortKeySpec struct {
	node       ast.Node
	descending bool
}

func parseSortArgs(args []ast.Node) []sortKeySpec {
	if len(args) == 0 {
		return []sortKeySpec{{}}
	}
	specs := make([]sortKeySpec, len(args))
	for i, a := range args {
		if u, ok := a.(*ast.Unary); ok && u.Op == ast.OpNegative {
			specs[i] = sortKeySpec{node: u.Operand, descending: true}
			continue
		}
		specs[i] = sortKeySpec{node: a}
	}
	return specs
}

// evalSort implements sort(criteria...): a stable multi-key sort, each
// criterion prefixed with unary "-" for descending order.
func (e *Evaluator) evalSort(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	specs := parseSortArgs(args)

	type keyedItem struct {
		item meta.Wrapped
		keys []types.Value
	}
	items := make([]keyedItem, len(target))
	for i, item := range target {
		itemCtx := e.ctx.WithThis(meta.Collection{item}).WithIndex(i)
		child := NewEvaluator(itemCtx, e.funcs)
		keys := make([]types.Value, len(specs))
		for j, spec := range specs {
			if spec.node == nil {
				keys[j] = item.Value
				continue
			}
			res, err := child.eval(spec.node)
			if err != nil {
				return nil, err
			}
			if v, ok, err := singleton(res.Unwrap()); err == nil && ok {
				keys[j] = v
			}
		}
		items[i] = keyedItem{item: item, keys: keys}
	}

	sort.SliceStable(items, func(a, b int) bool {
		for j, spec := range specs {
			ka, kb := items[a].keys[j], items[b].keys[j]
			if ka == nil || kb == nil {
				continue
			}
			cmp, err := Compare(ka, kb)
			if err != nil || cmp == 0 {
				continue
			}
			if spec.descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	result := make(meta.Collection, len(items))
	for i, it := range items {
		result[i] = it.item
	}
	return result, nil
}

// evalAggregate implements aggregate(aggregator, init?): a left fold over
// target exposing the running accumulator as $total inside aggregator.
func (e *Evaluator) evalAggregate(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, InvalidArgumentsError("aggregate", 1, len(args))
	}

	var total types.Value
	if len(args) == 2 {
		initRes, err := e.eval(args[1])
		if err != nil {
			return nil, err
		}
		if v, ok, err := singleton(initRes.Unwrap()); err != nil {
			return nil, err
		} else if ok {
			total = v
		}
	}

	for i, item := range target {
		itemCtx := e.ctx.WithThis(meta.Collection{item}).WithIndex(i).WithTotal(total)
		child := NewEvaluator(itemCtx, e.funcs)
		res, err := child.eval(args[0])
		if err != nil {
			return nil, err
		}
		v, ok, err := singleton(res.Unwrap())
		if err != nil {
			return nil, err
		}
		if ok {
			total = v
		} else {
			total = nil
		}
	}

	if total == nil {
		return meta.Empty(), nil
	}
	return meta.Single(total, meta.Metadata{}), nil
}

// evalTrace implements trace(name, projection?): forwards to the
// configured TraceProvider (a no-op if none is set) and passes target
// through unchanged.
func (e *Evaluator) evalTrace(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, InvalidArgumentsError("trace", 1, len(args))
	}
	nameRes, err := e.eval(args[0])
	if err != nil {
		return nil, err
	}
	name := ""
	if v, ok, _ := singleton(nameRes.Unwrap()); ok {
		if s, ok := v.(types.String); ok {
			name = s.Value()
		}
	}

	traced := target
	if len(args) == 2 {
		projected, err := e.perItem(target, args[1])
		if err != nil {
			return nil, err
		}
		var collected meta.Collection
		for _, items := range projected {
			collected = append(collected, items...)
		}
		traced = collected
	}
	e.ctx.Trace(name, traced.Unwrap())
	return target, nil
}

// evalDefineVariable implements defineVariable(name, value?): it mutates
// the evaluator's own Context scope frame so the binding is visible to the
// remainder of the expression chain the evaluator is walking, then passes
// target through unchanged.
func (e *Evaluator) evalDefineVariable(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, InvalidArgumentsError("defineVariable", 1, len(args))
	}
	nameRes, err := e.eval(args[0])
	if err != nil {
		return nil, err
	}
	nv, ok, err := singleton(nameRes.Unwrap())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewEvalError(ErrInvalidArguments, "defineVariable requires a name")
	}
	name, ok := nv.(types.String)
	if !ok {
		return nil, TypeError("String", nv.Type(), "defineVariable")
	}

	value := target.Unwrap()
	if len(args) == 2 {
		valRes, err := e.eval(args[1])
		if err != nil {
			return nil, err
		}
		value = valRes.Unwrap()
	}

	e.ctx.SetVariable(name.Value(), value)
	return target, nil
}

// evalIif implements iif(criteria, trueResult, falseResult?) against the
// current $this (target).
func (e *Evaluator) evalIif(target meta.Collection, args []ast.Node) (meta.Collection, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, InvalidArgumentsError("iif", 2, len(args))
	}
	itemCtx := e.ctx.WithThis(target)
	child := NewEvaluator(itemCtx, e.funcs)

	critRes, err := child.eval(args[0])
	if err != nil {
		return nil, err
	}
	truthy, ok, err := critRes.Unwrap().IsTruthy()
	if err != nil {
		return nil, err
	}
	if ok && truthy {
		return child.eval(args[1])
	}
	if len(args) == 3 {
		return child.eval(args[2])
	}
	return meta.Empty(), nil
}
