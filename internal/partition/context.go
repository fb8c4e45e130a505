// Package partition implements the graph surgery a backend needs to claim
// regions of a computation graph: per-graph contexts tracking locally
// produced versus externally required values, outer-scope restoration for
// rebuilt candidate graphs, and reconciliation of each rebuilt graph's
// declared input list.
package partition

import (
	"github.com/example/go-graphsplit/internal/graph"
)

// Context is the bookkeeping record for one graph during a partitioning
// pass: which value names its nodes produce, which names its nodes consume
// without a local producer, and which values had to be force-declared as
// inputs on a rebuilt root because no ancestor scope exposed them.
type Context struct {
	outputArgs            map[string]struct{}
	inputsAndInitializers map[string]*graph.Value
	inputOrder            []string
	manuallyAdded         []*graph.Value
	manuallyAddedSet      map[string]struct{}
}

func newContext() *Context {
	return &Context{
		outputArgs:            map[string]struct{}{},
		inputsAndInitializers: map[string]*graph.Value{},
		manuallyAddedSet:      map[string]struct{}{},
	}
}

// HasOutputArg reports whether name is produced by a node in the graph.
func (c *Context) HasOutputArg(name string) bool {
	_, ok := c.outputArgs[name]
	return ok
}

// HasFreeInput reports whether name is consumed in the graph without a
// local producer.
func (c *Context) HasFreeInput(name string) bool {
	_, ok := c.inputsAndInitializers[name]
	return ok
}

// NumOutputArgs returns the number of locally produced names.
func (c *Context) NumOutputArgs() int { return len(c.outputArgs) }

// FreeInputs returns the free input values in first-seen order.
func (c *Context) FreeInputs() []*graph.Value {
	out := make([]*graph.Value, 0, len(c.inputOrder))
	for _, name := range c.inputOrder {
		out = append(out, c.inputsAndInitializers[name])
	}

	return out
}

// ManuallyAddedInputs returns the hoisted closure values declared on this
// graph, in hoist order.
func (c *Context) ManuallyAddedInputs() []*graph.Value {
	return c.manuallyAdded
}

func (c *Context) addOutputArg(name string) {
	c.outputArgs[name] = struct{}{}
}

// addFreeInput records v unless its name is already present. First writer
// wins, so re-running the builder keeps the original insertion order.
func (c *Context) addFreeInput(v *graph.Value) {
	name := v.Name()
	if _, ok := c.inputsAndInitializers[name]; ok {
		return
	}

	c.inputsAndInitializers[name] = v
	c.inputOrder = append(c.inputOrder, name)
}

// addManualInput records a hoisted value exactly once per name.
func (c *Context) addManualInput(v *graph.Value) {
	name := v.Name()
	if _, ok := c.manuallyAddedSet[name]; ok {
		return
	}

	c.manuallyAddedSet[name] = struct{}{}
	c.manuallyAdded = append(c.manuallyAdded, v)
}

// Registry owns the contexts for one partitioning invocation, keyed by
// graph identity. Two graphs that happen to share a name therefore never
// collide. A Registry must not be shared across concurrent partitioning
// passes and must not outlive the rebuilt graphs it describes.
type Registry struct {
	contexts map[graph.Handle]*Context
}

func NewRegistry() *Registry {
	return &Registry{contexts: map[graph.Handle]*Context{}}
}

// Context returns the record for g, or nil when g was never visited.
func (r *Registry) Context(g *graph.Graph) *Context {
	return r.contexts[g.Handle()]
}

func (r *Registry) contextFor(g *graph.Graph) *Context {
	if c, ok := r.contexts[g.Handle()]; ok {
		return c
	}

	c := newContext()
	r.contexts[g.Handle()] = c

	return c
}

// BuildContexts populates the registry for g and every descendant graph,
// innermost graphs first. Pass one collects every node output; pass two
// records every node input without a local producer as a free input. Empty
// node slots are skipped.
func (r *Registry) BuildContexts(g *graph.Graph) {
	for i := 0; i < g.MaxNodeIndex(); i++ {
		node := g.Node(i)
		if node == nil {
			continue
		}

		for _, attrName := range node.SubgraphNames() {
			r.BuildContexts(node.Subgraph(attrName))
		}
	}

	ctx := r.contextFor(g)

	for i := 0; i < g.MaxNodeIndex(); i++ {
		node := g.Node(i)
		if node == nil {
			continue
		}

		for _, out := range node.Outputs() {
			ctx.addOutputArg(out.Name())
		}
	}

	for i := 0; i < g.MaxNodeIndex(); i++ {
		node := g.Node(i)
		if node == nil {
			continue
		}

		for _, in := range node.Inputs() {
			if ctx.HasOutputArg(in.Name()) {
				continue
			}

			// Not the output of another node here, so the name must come
			// from a graph input, an initializer, or an enclosing scope.
			ctx.addFreeInput(in)
		}
	}
}

// IsLocalValue reports whether g's context knows name as a locally produced
// output or a free input. A graph without a context yields false.
func (r *Registry) IsLocalValue(g *graph.Graph, name string) bool {
	ctx := r.Context(g)
	if ctx == nil {
		return false
	}

	return ctx.HasOutputArg(name) || ctx.HasFreeInput(name)
}

// IsInputInitializerOrOutput reports whether name is known to g's context,
// optionally walking parent graphs.
func (r *Registry) IsInputInitializerOrOutput(g *graph.Graph, name string, checkAncestors bool) bool {
	if r.IsLocalValue(g, name) {
		return true
	}

	parent := g.ParentGraph()
	if !checkAncestors || parent == nil {
		return false
	}

	return r.IsInputInitializerOrOutput(parent, name, checkAncestors)
}

// IsOuterScopeValue reports whether a strict ancestor of g exposes name
// through the ordinary nested-scope chain.
func (r *Registry) IsOuterScopeValue(g *graph.Graph, name string) bool {
	parent := g.ParentGraph()

	return parent != nil && r.IsInputInitializerOrOutput(parent, name, true)
}
