// Package eval implements the Core Evaluator, Navigator, Operator Evaluator,
// Lambda Evaluator and Composite Evaluator: the pieces that walk an ast.Node
// tree against a resource and produce a result collection.
//
// Grounded on the teacher's pkg/fhirpath/eval package, whose Context and
// per-item this/index save-restore idiom survives unchanged; the ANTLR
// visitor dispatch is replaced with a type switch over ast.Node since
// parsing an expression into a tree is out of scope here.
package eval

import (
	"context"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/meta"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/model"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/registry"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/terminology"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// Resolver handles FHIR reference resolution for the resolve() function.
type Resolver interface {
	Resolve(ctx context.Context, reference string) ([]byte, error)
}

// TraceProvider receives trace() calls; the default Context has none
// configured and trace() becomes a no-op pass-through.
type TraceProvider interface {
	Trace(name string, values types.Collection)
}

// Context holds all evaluation state: the root resource, the current $this/
// $index/$total, the variable scope chain, limits, and the external
// collaborators (model provider, terminology provider, reference resolver,
// trace sink).
type Context struct {
	root     meta.Collection
	this     meta.Collection
	index    int
	hasIndex bool
	total    types.Value

	// scopes is a stack of variable frames; defineVariable() pushes into the
	// top frame and scoping follows lexical nesting of lambda evaluation.
	scopes []map[string]types.Collection

	limits map[string]int
	goCtx  context.Context

	resolver    Resolver
	modelProv   model.Provider
	terminology terminology.Provider
	trace       TraceProvider
	registry    *registry.Registry

	// preferSync is the prefer_sync flag §4.4's dispatch algorithm branches
	// on. Defaults to true: this engine runs on a single calling goroutine,
	// so synchronous dispatch is the natural default whenever a function
	// offers one.
	preferSync bool
}

// NewContext builds an evaluation context from a JSON resource. %resource
// and %context are seeded to point at the root, per FHIRPath's environment
// variable rules and matching the teacher's NewContext.
func NewContext(resource []byte, reg *registry.Registry) *Context {
	root, _ := types.JSONToCollection(resource)

	resourceType := ""
	if len(root) == 1 {
		resourceType = root[0].Type()
	}
	baseMeta := meta.Metadata{ResourceType: resourceType, FHIRType: resourceType}
	wrapped := meta.Wrap(root, baseMeta)

	c := &Context{
		root:       wrapped,
		this:       wrapped,
		scopes:     []map[string]types.Collection{make(map[string]types.Collection)},
		limits:     make(map[string]int),
		goCtx:      context.Background(),
		registry:   reg,
		preferSync: true,
	}
	c.SetVariable("resource", root)
	c.SetVariable("context", root)
	return c
}

func (c *Context) SetLimit(name string, value int) {
	if c.limits == nil {
		c.limits = make(map[string]int)
	}
	c.limits[name] = value
}

func (c *Context) GetLimit(name string) int {
	if c.limits == nil {
		return 0
	}
	return c.limits[name]
}

func (c *Context) SetContext(ctx context.Context) { c.goCtx = ctx }

func (c *Context) Context() context.Context {
	if c.goCtx == nil {
		return context.Background()
	}
	return c.goCtx
}

func (c *Context) SetResolver(r Resolver)         { c.resolver = r }
func (c *Context) GetResolver() Resolver          { return c.resolver }
func (c *Context) SetModelProvider(p model.Provider)         { c.modelProv = p }
func (c *Context) ModelProvider() model.Provider             { return c.modelProv }
func (c *Context) SetTerminologyProvider(p terminology.Provider) { c.terminology = p }
func (c *Context) TerminologyProvider() terminology.Provider { return c.terminology }
func (c *Context) SetTraceProvider(t TraceProvider)          { c.trace = t }
func (c *Context) Registry() *registry.Registry              { return c.registry }

// SetPreferSync sets the prefer_sync flag §4.4's dispatch algorithm branches
// on for SyncFirst/Async functions (e.g. resolve()).
func (c *Context) SetPreferSync(prefer bool) { c.preferSync = prefer }

// PreferSync reports the current prefer_sync preference.
func (c *Context) PreferSync() bool { return c.preferSync }

// Trace forwards to the configured TraceProvider, if any.
func (c *Context) Trace(name string, values types.Collection) {
	if c.trace != nil {
		c.trace.Trace(name, values)
	}
}

// CheckCancellation reports ctx.Err() if the Go context has been canceled.
func (c *Context) CheckCancellation() error {
	if c.goCtx == nil {
		return nil
	}
	select {
	case <-c.goCtx.Done():
		return c.goCtx.Err()
	default:
		return nil
	}
}

// CheckCollectionSize errors if col exceeds the configured maxCollectionSize.
func (c *Context) CheckCollectionSize(col types.Collection) error {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return NewEvalError(ErrInvalidExpression,
			"collection size %d exceeds maximum allowed %d", len(col), maxSize)
	}
	return nil
}

// EnforceCollectionLimit truncates col if it exceeds maxCollectionSize.
func (c *Context) EnforceCollectionLimit(col types.Collection) (types.Collection, bool) {
	maxSize := c.GetLimit("maxCollectionSize")
	if maxSize > 0 && len(col) > maxSize {
		return col[:maxSize], true
	}
	return col, false
}

// Root returns the root (wrapped) collection, i.e. the resource the
// expression started evaluating against.
func (c *Context) Root() meta.Collection { return c.root }

// This returns the current $this (wrapped) collection.
func (c *Context) This() meta.Collection { return c.this }

// Index returns the current $index, and whether one is in scope (true while
// a lambda function evaluates its argument for one item of its input, for
// single-item inputs as well as multi-item ones).
func (c *Context) Index() (int, bool) { return c.index, c.hasIndex }

// Total returns the current $total (valid only inside aggregate()).
func (c *Context) Total() types.Value { return c.total }

// WithThis returns a shallow-copied Context with $this replaced.
func (c *Context) WithThis(this meta.Collection) *Context {
	n := *c
	n.this = this
	return &n
}

// WithIndex returns a shallow-copied Context with $index set.
func (c *Context) WithIndex(index int) *Context {
	n := *c
	n.index = index
	n.hasIndex = true
	return &n
}

// WithTotal returns a shallow-copied Context with $total set, used by
// aggregate() while folding.
func (c *Context) WithTotal(total types.Value) *Context {
	n := *c
	n.total = total
	return &n
}

// PushScope returns a shallow-copied Context with a fresh, empty variable
// frame on top of the scope chain; defineVariable() in that sub-evaluation
// will not leak into the caller's frame once the copy is discarded.
func (c *Context) PushScope() *Context {
	n := *c
	n.scopes = append(append([]map[string]types.Collection{}, c.scopes...), make(map[string]types.Collection))
	return &n
}

// SetVariable defines a variable in the current (innermost) scope frame.
func (c *Context) SetVariable(name string, value types.Collection) {
	c.scopes[len(c.scopes)-1][name] = value
}

// GetVariable looks up a variable, searching from the innermost scope frame
// outward.
func (c *Context) GetVariable(name string) (types.Collection, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}
