package eval

import (
	"strings"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/ast"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/meta"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// evalLiteral materializes an ast.Literal into a singleton wrapped
// collection. Grounded on the teacher's VisitBooleanLiteral/VisitNumberLiteral/
// VisitDateLiteral/... family, collapsed into one type switch since the new
// ast.Literal carries a Kind discriminator instead of one grammar context
// type per literal kind.
func (e *Evaluator) evalLiteral(n *ast.Literal) (meta.Collection, error) {
	switch n.Kind {
	case ast.LiteralNull:
		return meta.Empty(), nil
	case ast.LiteralBoolean:
		b, _ := n.Value.(bool)
		return e.systemValue(types.NewBoolean(b), "Boolean"), nil
	case ast.LiteralString:
		s, _ := n.Value.(string)
		return e.systemValue(types.NewString(s), "String"), nil
	case ast.LiteralInteger:
		text, _ := n.Value.(string)
		i, err := ast.ParseInt(text)
		if err != nil {
			return nil, NewEvalError(ErrParse, "invalid integer literal %q", text)
		}
		return e.systemValue(types.NewInteger(i), "Integer"), nil
	case ast.LiteralDecimal:
		text, _ := n.Value.(string)
		d, err := types.NewDecimal(text)
		if err != nil {
			return nil, NewEvalError(ErrParse, "invalid decimal literal %q", text)
		}
		return e.systemValue(d, "Decimal"), nil
	case ast.LiteralDate:
		text, _ := n.Value.(string)
		d, err := types.NewDate(strings.TrimPrefix(text, "@"))
		if err != nil {
			return nil, NewEvalError(ErrParse, "invalid date literal %q", text)
		}
		return e.systemValue(d, "Date"), nil
	case ast.LiteralDateTime:
		text, _ := n.Value.(string)
		dt, err := types.NewDateTime(strings.TrimPrefix(text, "@"))
		if err != nil {
			return nil, NewEvalError(ErrParse, "invalid datetime literal %q", text)
		}
		return e.systemValue(dt, "DateTime"), nil
	case ast.LiteralTime:
		text, _ := n.Value.(string)
		t, err := types.NewTime(strings.TrimPrefix(text, "@"))
		if err != nil {
			return nil, NewEvalError(ErrParse, "invalid time literal %q", text)
		}
		return e.systemValue(t, "Time"), nil
	case ast.LiteralQuantity:
		text, _ := n.Value.(string)
		q, err := types.NewQuantity(text)
		if err != nil {
			return nil, NewEvalError(ErrParse, "invalid quantity literal %q", text)
		}
		return e.systemValue(q, "Quantity"), nil
	default:
		return nil, NewEvalError(ErrInvalidExpression, "unknown literal kind")
	}
}

func (e *Evaluator) systemValue(v types.Value, fhirType string) meta.Collection {
	return meta.Single(v, meta.Metadata{FHIRType: fhirType})
}

// evalExternalConstant resolves a %name reference: the well-known
// %resource/%context/%ucum/%sct/%loinc constants plus any user-supplied
// variable set via eval.Context.SetVariable/EvalOptions.WithVariable.
func (e *Evaluator) evalExternalConstant(n *ast.ExternalConstant) (meta.Collection, error) {
	if v, ok := e.ctx.GetVariable(n.Name); ok {
		return meta.Wrap(v, meta.Metadata{}), nil
	}
	switch n.Name {
	case "sct":
		return e.systemValue(types.NewString("http://snomed.info/sct"), "String"), nil
	case "loinc":
		return e.systemValue(types.NewString("http://loinc.org"), "String"), nil
	case "ucum":
		return e.systemValue(types.NewString("http://unitsofmeasure.org"), "String"), nil
	case "vs-":
		return meta.Empty(), nil
	}
	return nil, NewEvalError(ErrInvalidExpression, "undefined variable %%%s", n.Name).WithPath(n.Name)
}
