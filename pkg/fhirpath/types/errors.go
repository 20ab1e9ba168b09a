package types

import (
	"fmt"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/diagnostics"
)

// TypeError represents a type mismatch error.
type TypeError struct {
	Expected  string
	Actual    string
	Operation string
}

// NewTypeError creates a new TypeError.
func NewTypeError(expected, actual, operation string) *TypeError {
	return &TypeError{
		Expected:  expected,
		Actual:    actual,
		Operation: operation,
	}
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error in %s: expected %s, got %s", e.Operation, e.Expected, e.Actual)
}

// Diagnostic converts e into the shared FPNNNN vocabulary (FP0053,
// "operator/operation applied to incompatible types"), so a TypeError
// surfaced from deep inside a value conversion carries the same stable
// code as one raised directly by the evaluator.
func (e *TypeError) Diagnostic() *diagnostics.Diagnostic {
	return diagnostics.OperatorTypeError(e.Operation, e.Actual, e.Expected)
}
