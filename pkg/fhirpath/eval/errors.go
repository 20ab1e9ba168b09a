// Package eval provides the FHIRPath expression evaluator.
package eval

import (
	"fmt"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/diagnostics"
)

// ErrorType represents the category of evaluation error.
type ErrorType int

const (
	// ErrParse indicates a parsing error.
	ErrParse ErrorType = iota
	// ErrType indicates a type mismatch error.
	ErrType
	// ErrSingletonExpected indicates multiple values where one was expected.
	ErrSingletonExpected
	// ErrFunctionNotFound indicates an unknown function.
	ErrFunctionNotFound
	// ErrInvalidArguments indicates invalid function arguments.
	ErrInvalidArguments
	// ErrDivisionByZero indicates division by zero.
	ErrDivisionByZero
	// ErrInvalidPath indicates an invalid path expression.
	ErrInvalidPath
	// ErrTimeout indicates evaluation timeout.
	ErrTimeout
	// ErrInvalidOperation indicates an unsupported operation.
	ErrInvalidOperation
	// ErrInvalidExpression indicates an invalid expression.
	ErrInvalidExpression
	// ErrInvalidProperty indicates navigation reached a property that is
	// neither resolvable in the instance nor declared on the nominal type.
	ErrInvalidProperty
	// ErrUnknownResourceType indicates a resource-type-filter identifier the
	// model provider does not recognize.
	ErrUnknownResourceType
	// ErrResourceTypeMismatch indicates a resource-type-filter identifier
	// that names a type other than the start context's actual type.
	ErrResourceTypeMismatch
	// ErrDuplicateFunction indicates a registry registration reused an
	// already-registered function name.
	ErrDuplicateFunction
	// ErrInvalidFunctionName indicates a registry registration with an empty
	// function name.
	ErrInvalidFunctionName
	// ErrExecutionModeNotSupported indicates a function's execution mode
	// cannot satisfy the caller's sync/async preference.
	ErrExecutionModeNotSupported
	// ErrInfiniteRecursion indicates a bounded recursive traversal
	// (repeat()/repeatAll()) exceeded one of its safety bounds.
	ErrInfiniteRecursion
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrParse:
		return "ParseError"
	case ErrType:
		return "TypeError"
	case ErrSingletonExpected:
		return "SingletonExpectedError"
	case ErrFunctionNotFound:
		return "FunctionNotFoundError"
	case ErrInvalidArguments:
		return "InvalidArgumentsError"
	case ErrDivisionByZero:
		return "DivisionByZeroError"
	case ErrInvalidPath:
		return "InvalidPathError"
	case ErrTimeout:
		return "TimeoutError"
	case ErrInvalidOperation:
		return "InvalidOperationError"
	case ErrInvalidExpression:
		return "InvalidExpressionError"
	case ErrInvalidProperty:
		return "InvalidPropertyAccess"
	case ErrUnknownResourceType:
		return "UnknownResourceType"
	case ErrResourceTypeMismatch:
		return "ResourceTypeMismatch"
	case ErrDuplicateFunction:
		return "DuplicateFunction"
	case ErrInvalidFunctionName:
		return "InvalidFunctionName"
	case ErrExecutionModeNotSupported:
		return "ExecutionModeNotSupported"
	case ErrInfiniteRecursion:
		return "InfiniteRecursion"
	default:
		return "UnknownError"
	}
}

// diagnosticCode maps an ErrorType onto the stable FPNNNN code it surfaces,
// per SPEC_FULL.md §7 ("implemented in diagnostics"); types with no entry
// raise without a code (they never reached a named diagnostic in spec §7/§8).
var diagnosticCode = map[ErrorType]diagnostics.Code{
	ErrParse:                     diagnostics.FP0001,
	ErrInvalidExpression:         diagnostics.FP0001,
	ErrType:                      diagnostics.FP0053,
	ErrInvalidOperation:          diagnostics.FP0053,
	ErrInvalidArguments:          diagnostics.FP0053,
	ErrSingletonExpected:         diagnostics.FP0055,
	ErrFunctionNotFound:          diagnostics.FP0061,
	ErrInvalidProperty:           diagnostics.FP0052,
	ErrUnknownResourceType:       diagnostics.FP0052,
	ErrResourceTypeMismatch:      diagnostics.FP0052,
	ErrDuplicateFunction:         diagnostics.FP0057,
	ErrInvalidFunctionName:       diagnostics.FP0057,
	ErrExecutionModeNotSupported: diagnostics.FP0058,
	ErrInfiniteRecursion:         diagnostics.FP0200,
}

// Position represents a location in the source expression.
type Position struct {
	Line   int
	Column int
}

// EvalError represents an error that occurred during evaluation.
//
//nolint:revive // Keeping EvalError name for API compatibility
type EvalError struct {
	Type       ErrorType
	Code       diagnostics.Code // stable FPNNNN code, per diagnosticCode; empty if unmapped
	Message    string
	Path       string   // Expression path where error occurred
	Position   Position // Position in source expression
	Underlying error    // Original error if wrapping
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	prefix := e.Type.String()
	if e.Code != "" {
		prefix = fmt.Sprintf("%s[%s]", prefix, e.Code)
	}
	if e.Position.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", prefix, e.Position.Line, e.Position.Column, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s in '%s': %s", prefix, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error.
func (e *EvalError) Unwrap() error {
	return e.Underlying
}

// Diagnostic converts e into a *diagnostics.Diagnostic carrying the same
// code/message/path, for callers (e.g. Evaluate's public error path) that
// want the shared FPNNNN vocabulary rather than the eval package's internal
// error shape.
func (e *EvalError) Diagnostic() *diagnostics.Diagnostic {
	d := diagnostics.New(e.Code, e.Message)
	if e.Path != "" {
		d = d.WithPath(e.Path)
	}
	if e.Position.Line > 0 {
		d = d.WithPosition(e.Position.Line, e.Position.Column)
	}
	if e.Underlying != nil {
		d = d.WithUnderlying(e.Underlying)
	}
	return d
}

// NewEvalError creates a new evaluation error.
// Supports format strings like fmt.Sprintf.
func NewEvalError(errType ErrorType, format string, args ...interface{}) *EvalError {
	message := format
	if len(args) > 0 {
		message = fmt.Sprintf(format, args...)
	}
	return &EvalError{
		Type:    errType,
		Code:    diagnosticCode[errType],
		Message: message,
	}
}

// WithPath adds path information to the error.
func (e *EvalError) WithPath(path string) *EvalError {
	e.Path = path
	return e
}

// WithPosition adds position information to the error.
func (e *EvalError) WithPosition(line, column int) *EvalError {
	e.Position = Position{Line: line, Column: column}
	return e
}

// WithUnderlying adds an underlying error.
func (e *EvalError) WithUnderlying(err error) *EvalError {
	e.Underlying = err
	return e
}

// Helper functions for common errors

// ParseError creates a parsing error.
func ParseError(message string) *EvalError {
	return NewEvalError(ErrParse, message)
}

// TypeError creates a type mismatch error.
func TypeError(expected, actual, operation string) *EvalError {
	return NewEvalError(ErrType, fmt.Sprintf("expected %s, got %s in %s", expected, actual, operation))
}

// SingletonError creates a singleton expected error.
func SingletonError(count int) *EvalError {
	return NewEvalError(ErrSingletonExpected, fmt.Sprintf("expected single value, got %d elements", count))
}

// FunctionNotFoundError creates a function not found error.
func FunctionNotFoundError(name string) *EvalError {
	return NewEvalError(ErrFunctionNotFound, fmt.Sprintf("unknown function '%s'", name))
}

// InvalidArgumentsError creates an invalid arguments error.
func InvalidArgumentsError(funcName string, expected, actual int) *EvalError {
	return NewEvalError(ErrInvalidArguments, fmt.Sprintf("function '%s' expects %d arguments, got %d", funcName, expected, actual))
}

// DivisionByZeroError creates a division by zero error.
func DivisionByZeroError() *EvalError {
	return NewEvalError(ErrDivisionByZero, "division by zero")
}

// InvalidPathError creates an invalid path error.
func InvalidPathError(path string) *EvalError {
	return NewEvalError(ErrInvalidPath, fmt.Sprintf("invalid path '%s'", path))
}

// InvalidOperationError creates an invalid operation error.
func InvalidOperationError(op, leftType, rightType string) *EvalError {
	return NewEvalError(ErrInvalidOperation, fmt.Sprintf("cannot apply '%s' to %s and %s", op, leftType, rightType))
}

// InvalidPropertyAccessError creates the error raised when navigation
// reaches a property that is neither resolvable in the instance nor
// declared on the nominal type (the "undeclared" half of §4.3's resolver
// split; the "declared but missing" half returns an empty collection, not
// an error).
func InvalidPropertyAccessError(typeName, property string) *EvalError {
	return NewEvalError(ErrInvalidProperty, "type '%s' has no declared property '%s'", typeName, property)
}

// UnknownResourceTypeError creates the error raised when a leading
// uppercase identifier names a resource type the model provider does not
// recognize.
func UnknownResourceTypeError(name string) *EvalError {
	return NewEvalError(ErrUnknownResourceType, "unknown resource type '%s'", name)
}

// ResourceTypeMismatchError creates the error raised when a leading
// uppercase identifier names a resource type other than the one the start
// context actually holds.
func ResourceTypeMismatchError(expected, actual string) *EvalError {
	return NewEvalError(ErrResourceTypeMismatch, "resource type filter '%s' does not match context type '%s'", expected, actual)
}

// DuplicateFunctionError creates the error raised when a registry
// registration reuses an already-registered function name.
func DuplicateFunctionError(name string) *EvalError {
	return NewEvalError(ErrDuplicateFunction, "function '%s' is already registered", name)
}

// InvalidFunctionNameError creates the error raised when a registry
// registration supplies an empty function name.
func InvalidFunctionNameError() *EvalError {
	return NewEvalError(ErrInvalidFunctionName, "function name must not be empty")
}

// ExecutionModeNotSupportedError creates the error a function's dispatch
// raises when its execution mode cannot satisfy the caller's sync/async
// preference.
func ExecutionModeNotSupportedError(name, mode string) *EvalError {
	return NewEvalError(ErrExecutionModeNotSupported, "function '%s' does not support %s execution", name, mode)
}

// InfiniteRecursionError creates the error raised when repeat()/repeatAll()
// exceeds one of its four safety bounds; bound names the specific limit hit
// (iterations, depth, total items, or stall window) so the four conditions
// stay distinguishable in the message despite sharing the FP0200 code.
func InfiniteRecursionError(bound string, limit int) *EvalError {
	return NewEvalError(ErrInfiniteRecursion, "repeat() exceeded %s (limit %d)", bound, limit)
}
