package eval

import (
	"strings"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/ast"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/meta"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// Evaluator is the Composite Evaluator: it dispatches over ast.Node by type
// switch and delegates to the Core Evaluator (literals/variables), the
// Navigator (member access), the Operator Evaluator (operators.go) and the
// Lambda Evaluator (lambda.go) as appropriate. It replaces the teacher's
// ANTLR-visitor Evaluator with an equivalent structure over the in-repo ast
// package.
type Evaluator struct {
	ctx   *Context
	funcs FuncRegistry
	nav   *Navigator
}

// NewEvaluator builds an Evaluator bound to ctx, dispatching function calls
// through funcs.
func NewEvaluator(ctx *Context, funcs FuncRegistry) *Evaluator {
	return &Evaluator{ctx: ctx, funcs: funcs, nav: NewNavigator(ctx)}
}

// Evaluate runs node against the evaluator's current context and returns the
// plain (unwrapped) result collection, the shape the public API returns.
func (e *Evaluator) Evaluate(node ast.Node) (types.Collection, error) {
	result, err := e.eval(node)
	if err != nil {
		return nil, err
	}
	return result.Unwrap(), nil
}

// eval is the metadata-preserving evaluation entry point used internally
// (by the lambda evaluator and by nested eval() calls) so that path/type
// metadata survives across navigation steps.
func (e *Evaluator) eval(node ast.Node) (meta.Collection, error) {
	if err := e.ctx.CheckCancellation(); err != nil {
		return nil, err
	}

	switch n := node.(type) {
	case *ast.Literal:
		return e.evalLiteral(n)
	case *ast.Identifier:
		return e.nav.NavigateIdentifier(e.ctx.This(), n.Name)
	case *ast.ThisInvocation:
		return e.ctx.This(), nil
	case *ast.IndexInvocation:
		idx, ok := e.ctx.Index()
		if !ok {
			return meta.Empty(), nil
		}
		return e.systemValue(types.NewInteger(int64(idx)), "Integer"), nil
	case *ast.TotalInvocation:
		total := e.ctx.Total()
		if total == nil {
			return meta.Empty(), nil
		}
		return meta.Single(total, meta.Metadata{}), nil
	case *ast.ExternalConstant:
		return e.evalExternalConstant(n)
	case *ast.Paren:
		return e.eval(n.Inner)
	case *ast.MemberAccess:
		target, err := e.evalTarget(n.Target)
		if err != nil {
			return nil, err
		}
		return e.nav.Navigate(target, n.Name)
	case *ast.Indexer:
		return e.evalIndexer(n)
	case *ast.Invocation:
		return e.evalInvocation(n)
	case *ast.Unary:
		return e.evalUnary(n)
	case *ast.Binary:
		return e.evalBinary(n)
	case *ast.TypeExpr:
		return e.systemValue(types.NewString(typeExprName(n)), "String"), nil
	default:
		return nil, NewEvalError(ErrInvalidExpression, "unsupported ast node %T", node)
	}
}

// evalTarget evaluates a (possibly nil) navigation target; nil means the
// step is rooted at the current $this, matching FHIRPath's implicit-context
// invocation rule.
func (e *Evaluator) evalTarget(target ast.Node) (meta.Collection, error) {
	if target == nil {
		return e.ctx.This(), nil
	}
	return e.eval(target)
}

func (e *Evaluator) evalIndexer(n *ast.Indexer) (meta.Collection, error) {
	target, err := e.eval(n.Target)
	if err != nil {
		return nil, err
	}
	idxCol, err := e.eval(n.Index)
	if err != nil {
		return nil, err
	}
	if len(idxCol) != 1 {
		return meta.Empty(), nil
	}
	i, ok := idxCol[0].Value.(types.Integer)
	if !ok {
		return nil, TypeError("Integer", idxCol[0].Value.Type(), "indexer")
	}
	idx := int(i.Value())
	if idx < 0 || idx >= len(target) {
		return meta.Empty(), nil
	}
	return meta.Collection{target[idx]}, nil
}

func typeExprName(n *ast.TypeExpr) string {
	if n.Namespace != "" {
		return n.Namespace + "." + n.Name
	}
	return n.Name
}

// dottedTypeName reconstructs a dotted type name ("FHIR.Patient") from an
// argument AST shaped like a member-access chain, for the function-call
// forms of is()/as()/ofType() whose single argument is a bare type
// reference rather than a string literal.
func dottedTypeName(n ast.Node) (string, bool) {
	switch v := n.(type) {
	case *ast.Identifier:
		return v.Name, true
	case *ast.TypeExpr:
		return typeExprName(v), true
	case *ast.MemberAccess:
		base, ok := dottedTypeName(v.Target)
		if !ok {
			return "", false
		}
		return base + "." + v.Name, true
	case *ast.Literal:
		if v.Kind == ast.LiteralString {
			s, _ := v.Value.(string)
			return s, true
		}
	}
	return "", false
}

func bareTypeName(dotted string) string {
	if idx := strings.LastIndexByte(dotted, '.'); idx >= 0 {
		return dotted[idx+1:]
	}
	return dotted
}

// plain wraps a computed (provenance-less) result collection: arithmetic,
// comparison, and boolean-operator results are new values with no single
// originating path, so they carry empty Metadata rather than a derived one.
func (e *Evaluator) plain(c types.Collection) meta.Collection {
	return meta.Wrap(c, meta.Metadata{})
}

func singleton(c types.Collection) (types.Value, bool, error) {
	switch len(c) {
	case 0:
		return nil, false, nil
	case 1:
		return c[0], true, nil
	default:
		return nil, false, SingletonError(len(c))
	}
}

// evalInvocation dispatches a Name(Args...) call: lambda-taking functions
// (where, select, all, repeat, sort, aggregate, ...) are routed to the
// lambda evaluator so their arguments evaluate per-item against a changing
// $this/$index; every other function evaluates its arguments eagerly once
// and dispatches through the FuncRegistry, matching the teacher's
// evaluateFunction split.
func (e *Evaluator) evalInvocation(n *ast.Invocation) (meta.Collection, error) {
	target, err := e.evalTarget(n.Target)
	if err != nil {
		return nil, err
	}

	if LambdaFunctionNames[n.Name] {
		return e.evalLambdaCall(n.Name, target, n.Args)
	}

	def, ok := e.funcs.Get(n.Name)
	if !ok {
		return nil, FunctionNotFoundError(n.Name).WithPath(n.Name)
	}
	if len(n.Args) < def.MinArgs || len(n.Args) > def.MaxArgs {
		return nil, InvalidArgumentsError(n.Name, def.MinArgs, len(n.Args))
	}

	args := make([]interface{}, len(n.Args))
	for i, a := range n.Args {
		w, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = w.Unwrap()
	}

	result, err := dispatchFunc(e.ctx, def, target.Unwrap(), args)
	if err != nil {
		return nil, err
	}
	return e.plain(result), nil
}

// evalUnary evaluates a prefix operator.
func (e *Evaluator) evalUnary(n *ast.Unary) (meta.Collection, error) {
	operand, err := e.eval(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case ast.OpPositive:
		return operand, nil
	case ast.OpNot:
		return e.plain(Not(operand.Unwrap())), nil
	case ast.OpNegative:
		v, ok, err := singleton(operand.Unwrap())
		if err != nil {
			return nil, err
		}
		if !ok {
			return meta.Empty(), nil
		}
		neg, err := Negate(v)
		if err != nil {
			return nil, err
		}
		return meta.Single(neg, meta.Metadata{}), nil
	}
	return nil, NewEvalError(ErrInvalidExpression, "unsupported unary operator")
}

// evalBinary evaluates an infix operator. Collection-level operators
// (union, in, contains, &, equality, boolean logic) delegate straight to
// operators.go with the whole collections; the remaining arithmetic and
// relational operators require singleton operands, per FHIRPath's operator
// semantics, and propagate empty when either side is empty.
func (e *Evaluator) evalBinary(n *ast.Binary) (meta.Collection, error) {
	if n.Op == ast.OpIs || n.Op == ast.OpAs {
		return e.evalTypeOperator(n)
	}

	leftW, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}
	left := leftW.Unwrap()

	rightW, err := e.eval(n.Right)
	if err != nil {
		return nil, err
	}
	right := rightW.Unwrap()

	switch n.Op {
	case ast.OpUnion:
		return e.plain(Union(left, right)), nil
	case ast.OpIn:
		return e.plain(In(left, right)), nil
	case ast.OpContains:
		return e.plain(Contains(left, right)), nil
	case ast.OpConcat:
		return e.plain(Concatenate(left, right)), nil
	case ast.OpEq:
		return e.plain(Equal(left, right)), nil
	case ast.OpNeq:
		return e.plain(NotEqual(left, right)), nil
	case ast.OpEquiv:
		return e.plain(Equivalent(left, right)), nil
	case ast.OpNotEquiv:
		return e.plain(NotEquivalent(left, right)), nil
	case ast.OpAnd:
		return e.plain(And(left, right)), nil
	case ast.OpOr:
		return e.plain(Or(left, right)), nil
	case ast.OpXor:
		return e.plain(Xor(left, right)), nil
	case ast.OpImplies:
		return e.plain(Implies(left, right)), nil
	}

	lv, lok, err := singleton(left)
	if err != nil {
		return nil, err
	}
	rv, rok, err := singleton(right)
	if err != nil {
		return nil, err
	}
	if !lok || !rok {
		return meta.Empty(), nil
	}

	switch n.Op {
	case ast.OpAdd:
		v, err := Add(lv, rv)
		if err != nil {
			return nil, err
		}
		return meta.Single(v, meta.Metadata{}), nil
	case ast.OpSub:
		v, err := Subtract(lv, rv)
		if err != nil {
			return nil, err
		}
		return meta.Single(v, meta.Metadata{}), nil
	case ast.OpMul:
		v, err := Multiply(lv, rv)
		if err != nil {
			return nil, err
		}
		return meta.Single(v, meta.Metadata{}), nil
	case ast.OpDiv:
		v, err := Divide(lv, rv)
		if err != nil {
			return nil, err
		}
		return meta.Single(v, meta.Metadata{}), nil
	case ast.OpIntDiv:
		v, err := IntegerDivide(lv, rv)
		if err != nil {
			return nil, err
		}
		return meta.Single(v, meta.Metadata{}), nil
	case ast.OpMod:
		v, err := Modulo(lv, rv)
		if err != nil {
			return nil, err
		}
		return meta.Single(v, meta.Metadata{}), nil
	case ast.OpLt:
		c, err := LessThan(lv, rv)
		if err != nil {
			return nil, err
		}
		return e.plain(c), nil
	case ast.OpLte:
		c, err := LessOrEqual(lv, rv)
		if err != nil {
			return nil, err
		}
		return e.plain(c), nil
	case ast.OpGt:
		c, err := GreaterThan(lv, rv)
		if err != nil {
			return nil, err
		}
		return e.plain(c), nil
	case ast.OpGte:
		c, err := GreaterOrEqual(lv, rv)
		if err != nil {
			return nil, err
		}
		return e.plain(c), nil
	}

	return nil, NewEvalError(ErrInvalidExpression, "unsupported binary operator")
}

// evalTypeOperator implements the "is"/"as" infix forms, whose right-hand
// side is a bare type reference (ast.TypeExpr or an identifier chain) and
// not a value expression to be evaluated.
func (e *Evaluator) evalTypeOperator(n *ast.Binary) (meta.Collection, error) {
	left, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}
	return e.typeCheckOrCast(left, n.Right, n.Op == ast.OpAs)
}

// typeCheckOrCast is shared by the "is"/"as" infix operators and their
// is()/as()/ofType()-family function-call forms: it resolves items' FHIR
// type against a dotted type reference and either reports a boolean match
// (asCast=false) or filters down to the matching singleton (asCast=true).
func (e *Evaluator) typeCheckOrCast(items meta.Collection, typeArg ast.Node, asCast bool) (meta.Collection, error) {
	dotted, ok := dottedTypeName(typeArg)
	if !ok {
		return nil, NewEvalError(ErrInvalidExpression, "expected a type name")
	}
	if len(items) == 0 {
		return meta.Empty(), nil
	}
	if len(items) > 1 {
		return nil, SingletonError(len(items))
	}
	item := items[0]
	actual := item.Metadata.FHIRType
	if actual == "" {
		actual = item.Value.Type()
	}
	matches := TypeMatches(actual, dotted) || TypeMatches(actual, bareTypeName(dotted))

	if asCast {
		if matches {
			return meta.Collection{item}, nil
		}
		return meta.Empty(), nil
	}
	return e.plain(types.Collection{types.NewBoolean(matches)}), nil
}
