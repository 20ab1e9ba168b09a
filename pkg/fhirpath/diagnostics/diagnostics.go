// Package diagnostics defines the stable error/warning vocabulary shared by
// the evaluator and the static analyzer.
package diagnostics

import "fmt"

// Code is a stable diagnostic identifier of the form FPNNNN.
type Code string

const (
	// FP0001 is a generic parse/structure error raised for malformed input
	// that reached the engine (the AST builder is expected to catch most of
	// these before the evaluator ever sees them).
	FP0001 Code = "FP0001"
	// FP0051 is raised when a function is called with the wrong arity.
	FP0051 Code = "FP0051"
	// FP0052 is raised when a property does not exist on the resolved type.
	FP0052 Code = "FP0052"
	// FP0053 is raised when an operator is applied to incompatible types.
	FP0053 Code = "FP0053"
	// FP0055 is raised when a singleton was required but the input collection
	// held more than one item.
	FP0055 Code = "FP0055"
	// FP0061 is raised when an unknown function name is invoked.
	FP0061 Code = "FP0061"
	// FP0057 is raised by the function registry when a registration is
	// rejected: a duplicate name or an empty one.
	FP0057 Code = "FP0057"
	// FP0058 is raised when a function's execution mode cannot satisfy the
	// caller's sync/async preference (ExecutionModeNotSupported).
	FP0058 Code = "FP0058"
	// FP0200 is raised when an expression exceeds a configured complexity,
	// nesting, or recursive-evaluation safety bound (the analyzer's
	// complexity limit and the evaluator's repeat()/repeatAll() bounds share
	// this code; the message distinguishes which bound was hit).
	FP0200 Code = "FP0200"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Location pinpoints a diagnostic within the source expression. Since
// lexing/parsing is out of scope here, Line/Column are populated only when
// the AST supplied by the caller carries position information; Path is the
// canonical resource path active at the point the diagnostic was raised.
type Location struct {
	Line   int
	Column int
	Path   string
}

// Diagnostic is a single error, warning or suggestion produced by the
// evaluator or the analyzer.
type Diagnostic struct {
	Code       Code
	Severity   Severity
	Message    string
	Location   Location
	Suggestion string
	Underlying error
}

func (d *Diagnostic) Error() string {
	if d.Location.Path != "" {
		return fmt.Sprintf("%s: %s (at %s)", d.Code, d.Message, d.Location.Path)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

func (d *Diagnostic) Unwrap() error {
	return d.Underlying
}

// New builds a Diagnostic with SeverityError.
func New(code Code, message string) *Diagnostic {
	return &Diagnostic{Code: code, Severity: SeverityError, Message: message}
}

// Newf builds a Diagnostic with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Diagnostic {
	return New(code, fmt.Sprintf(format, args...))
}

// WithPath returns a copy of d with Location.Path set.
func (d *Diagnostic) WithPath(path string) *Diagnostic {
	cp := *d
	cp.Location.Path = path
	return &cp
}

// WithPosition returns a copy of d with Location.Line/Column set.
func (d *Diagnostic) WithPosition(line, column int) *Diagnostic {
	cp := *d
	cp.Location.Line = line
	cp.Location.Column = column
	return &cp
}

// WithUnderlying attaches a wrapped error, preserved by Unwrap.
func (d *Diagnostic) WithUnderlying(err error) *Diagnostic {
	cp := *d
	cp.Underlying = err
	return &cp
}

// AsWarning returns a copy of d with SeverityWarning.
func (d *Diagnostic) AsWarning() *Diagnostic {
	cp := *d
	cp.Severity = SeverityWarning
	return &cp
}

// Helper constructors mirroring the teacher's eval/errors.go idiom, extended
// with the stable FPNNNN codes this spec requires.

func ArityError(function string, want, got int) *Diagnostic {
	return Newf(FP0051, "function %q expects %d argument(s), got %d", function, want, got)
}

func PropertyNotFoundError(typeName, property string) *Diagnostic {
	return Newf(FP0052, "type %q has no property %q", typeName, property)
}

func OperatorTypeError(op, left, right string) *Diagnostic {
	return Newf(FP0053, "operator %q not defined for %s and %s", op, left, right)
}

func SingletonError(count int) *Diagnostic {
	return Newf(FP0055, "expected a singleton but collection has %d items", count)
}

func UnknownFunctionError(name string) *Diagnostic {
	return Newf(FP0061, "unknown function %q", name)
}

func ComplexityError(limit, actual int) *Diagnostic {
	return Newf(FP0200, "expression complexity %d exceeds limit %d", actual, limit).AsWarning()
}

// InvalidPropertyAccessError is raised when navigation reaches a property
// that is neither resolvable in the instance nor declared on the nominal
// type: per §4.3's resolver split, "declared but missing" is empty, not an
// error; this code is reserved for the remaining "undeclared" case.
func InvalidPropertyAccessError(typeName, property string) *Diagnostic {
	return Newf(FP0052, "type %q has no declared property %q", typeName, property)
}

// UnknownResourceTypeError is raised for a leading uppercase identifier the
// model provider does not recognize as a resource type.
func UnknownResourceTypeError(name string) *Diagnostic {
	return Newf(FP0052, "unknown resource type %q", name)
}

// ResourceTypeMismatchError is raised when a leading uppercase identifier
// names a resource type other than the one the start context holds.
func ResourceTypeMismatchError(expected, actual string) *Diagnostic {
	return Newf(FP0052, "resource type filter %q does not match context type %q", expected, actual)
}

// DuplicateFunctionError is raised when a registry registration reuses an
// already-registered function name.
func DuplicateFunctionError(name string) *Diagnostic {
	return Newf(FP0057, "function %q is already registered", name)
}

// InvalidFunctionNameError is raised when a registry registration supplies
// an empty function name.
func InvalidFunctionNameError() *Diagnostic {
	return Newf(FP0057, "function name must not be empty")
}

// ExecutionModeNotSupportedError is raised when a function's execution mode
// cannot satisfy the caller's sync/async preference.
func ExecutionModeNotSupportedError(name, mode string) *Diagnostic {
	return Newf(FP0058, "function %q does not support %s execution", name, mode)
}

// InfiniteRecursionError is raised when a bounded recursive traversal
// (repeat()/repeatAll()) exceeds one of its safety bounds.
func InfiniteRecursionError(bound string, limit int) *Diagnostic {
	return Newf(FP0200, "recursive evaluation exceeded %s (limit %d)", bound, limit)
}
