package types

// NewEmpty returns the canonical empty collection.
func NewEmpty() Collection {
	return Collection{}
}

// IsTruthy implements the FHIRPath singleton-evaluation-of-collections
// boolean coercion used by the where()/all()/exists()/iif() criteria: empty is neither true
// nor false (ok=false), a non-boolean singleton is an error, and a
// multi-item collection is an error.
func (c Collection) IsTruthy() (value bool, ok bool, err error) {
	switch len(c) {
	case 0:
		return false, false, nil
	case 1:
		b, isBool := c[0].(Boolean)
		if !isBool {
			return false, false, NewTypeError("Boolean", c[0].Type(), "boolean evaluation")
		}
		return b.Bool(), true, nil
	default:
		return false, false, NewTypeError("Boolean", "collection", "boolean evaluation")
	}
}

// Flatten concatenates collections in order, used at every point the
// evaluator combines per-item results back into one collection.
func Flatten(cs ...Collection) Collection {
	total := 0
	for _, c := range cs {
		total += len(c)
	}
	out := make(Collection, 0, total)
	for _, c := range cs {
		out = append(out, c...)
	}
	return out
}
