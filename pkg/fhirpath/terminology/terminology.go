// Package terminology defines the external terminology-service contract for
// functions such as memberOf()/subsumes(); the built-in function set does not
// include those functions, and the concrete provider (talking to a real
// terminology server) is out of scope for this engine.
package terminology

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by a Provider method when no terminology
// backend is configured; callers should treat this as "cannot evaluate",
// distinct from a definitive false answer.
var ErrUnavailable = errors.New("terminology: provider unavailable")

// Provider validates codes against value sets and code systems.
type Provider interface {
	// ValidateCode reports whether code (from system) is a member of the
	// value set identified by valueSetURL.
	ValidateCode(ctx context.Context, valueSetURL, system, code string) (bool, error)
	// Subsumes reports whether codeA subsumes codeB within system.
	Subsumes(ctx context.Context, system, codeA, codeB string) (bool, error)
}
