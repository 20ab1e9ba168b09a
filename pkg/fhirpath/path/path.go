// Package path implements the canonical, printable resource path used to tag
// every value that flows through the evaluator (e.g. "Patient.name[0].family").
//
// The builder below is pool-backed to keep per-navigation-step allocation
// low on large resources, the same trade-off gofhir-validator's pool.PathBuilder
// makes for its structural-validation walker.
package path

import (
	"strconv"
	"strings"
	"sync"
)

// Segment is one step of a Path: either a named property or an array index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Path is an immutable sequence of Segments. The zero value is the empty
// (root) path.
type Path struct {
	segments []Segment
}

// Root is the empty path.
var Root = Path{}

// AppendProperty returns a new Path with a named segment appended.
func (p Path) AppendProperty(name string) Path {
	next := make([]Segment, len(p.segments)+1)
	copy(next, p.segments)
	next[len(p.segments)] = Segment{Name: name}
	return Path{segments: next}
}

// AppendIndex returns a new Path with an array-index segment appended. The
// index is its own Segment (IsIndex set); String renders it directly after
// the preceding property, e.g. "name[0]", not as a dotted step.
func (p Path) AppendIndex(i int) Path {
	next := make([]Segment, len(p.segments)+1)
	copy(next, p.segments)
	next[len(p.segments)] = Segment{Index: i, IsIndex: true}
	return Path{segments: next}
}

// Len reports the number of segments.
func (p Path) Len() int {
	return len(p.segments)
}

// Last returns the final segment and true, or the zero Segment and false for
// the root path.
func (p Path) Last() (Segment, bool) {
	if len(p.segments) == 0 {
		return Segment{}, false
	}
	return p.segments[len(p.segments)-1], true
}

// Segments returns a defensive copy of the underlying segment slice.
func (p Path) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

var builderPool = sync.Pool{
	New: func() any {
		return &builder{buf: make([]byte, 0, 256)}
	},
}

type builder struct {
	buf []byte
}

func (b *builder) reset() { b.buf = b.buf[:0] }

// String renders the path using dot separators and bracketed indexes, e.g.
// "Patient.name[0].given[1]".
func (p Path) String() string {
	if len(p.segments) == 0 {
		return ""
	}
	b := builderPool.Get().(*builder)
	b.reset()
	defer builderPool.Put(b)

	for _, seg := range p.segments {
		if seg.IsIndex {
			b.buf = append(b.buf, '[')
			b.buf = strconv.AppendInt(b.buf, int64(seg.Index), 10)
			b.buf = append(b.buf, ']')
			continue
		}
		if len(b.buf) > 0 {
			b.buf = append(b.buf, '.')
		}
		b.buf = append(b.buf, seg.Name...)
	}
	return string(b.buf)
}

// Parse reconstructs a Path from its printed form. It is a convenience for
// tests and diagnostics display; the evaluator itself builds Paths
// incrementally via AppendProperty/AppendIndex and never needs to parse one.
func Parse(s string) Path {
	if s == "" {
		return Root
	}
	var p Path
	for _, dotPart := range strings.Split(s, ".") {
		name := dotPart
		for {
			open := strings.IndexByte(name, '[')
			if open < 0 {
				if name != "" {
					p = p.AppendProperty(name)
				}
				break
			}
			close := strings.IndexByte(name[open:], ']')
			if close < 0 {
				if name != "" {
					p = p.AppendProperty(name)
				}
				break
			}
			close += open
			if open > 0 {
				p = p.AppendProperty(name[:open])
			}
			if idx, err := strconv.Atoi(name[open+1 : close]); err == nil {
				p = p.AppendIndex(idx)
			}
			name = name[close+1:]
			if name == "" {
				break
			}
		}
	}
	return p
}
