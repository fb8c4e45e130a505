// Package graph implements the mutable computation-graph model the
// partitioning engine operates on: named values, nodes with attributes,
// and nested control-flow subgraphs forming a tree of graphs with parent
// back-references.
package graph

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/example/go-graphsplit/internal/tensor"
)

// Handle identifies a graph for the lifetime of the process. Handles are
// never reused, so registry state keyed by handle cannot collide even when
// two graphs share a name.
type Handle int64

var handleCounter atomic.Int64

// Graph is a mutable directed graph of nodes and named values. Nodes live in
// indexed slots; removing a node tombstones its slot, so iteration goes
// through MaxNodeIndex and Node, skipping nil entries. Graphs nested under
// control-flow nodes keep non-owning back-references to their parent node
// and parent graph.
type Graph struct {
	handle Handle
	name   string

	nodes  []*Node
	values map[string]*Value

	inputs    []*Value
	inputsSet bool
	outputs   []*Value

	initializers     map[string]*tensor.Tensor
	initializerOrder []string

	outerScope map[string]struct{}

	parentNode  *Node
	parentGraph *Graph
}

// New creates an empty graph with a fresh identity handle.
func New(name string) *Graph {
	return &Graph{
		handle:       Handle(handleCounter.Add(1)),
		name:         name,
		values:       map[string]*Value{},
		initializers: map[string]*tensor.Tensor{},
		outerScope:   map[string]struct{}{},
	}
}

// Handle returns the graph's process-unique identity.
func (g *Graph) Handle() Handle { return g.handle }

func (g *Graph) Name() string { return g.name }

// ParentNode returns the control-flow node that owns this graph as an
// attribute, or nil for a root graph.
func (g *Graph) ParentNode() *Node { return g.parentNode }

// ParentGraph returns the graph containing the parent node, or nil.
func (g *Graph) ParentGraph() *Graph { return g.parentGraph }

// MaxNodeIndex returns the number of node slots. Slots below this bound may
// be nil where nodes were removed.
func (g *Graph) MaxNodeIndex() int { return len(g.nodes) }

// Node returns the node in slot i, or nil when the slot is empty or out of
// range.
func (g *Graph) Node(i int) *Node {
	if i < 0 || i >= len(g.nodes) {
		return nil
	}

	return g.nodes[i]
}

// Nodes returns the live nodes in slot order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n)
		}
	}

	return out
}

// NumNodes returns the number of live nodes.
func (g *Graph) NumNodes() int {
	count := 0
	for _, n := range g.nodes {
		if n != nil {
			count++
		}
	}

	return count
}

// RemoveNode tombstones the slot holding node i. The caller is responsible
// for not leaving dangling consumers behind.
func (g *Graph) RemoveNode(i int) error {
	if i < 0 || i >= len(g.nodes) || g.nodes[i] == nil {
		return fmt.Errorf("graph: no node in slot %d", i)
	}

	g.nodes[i] = nil

	return nil
}

// ValueRef returns the value registered under name, creating it if needed.
// A non-nil typ fills in the type of a value that does not have one yet;
// it never overwrites an existing type.
func (g *Graph) ValueRef(name string, typ *TypeInfo) *Value {
	if v, ok := g.values[name]; ok {
		if v.typ == nil && typ != nil {
			v.typ = typ.Clone()
		}

		return v
	}

	v := &Value{name: name, typ: typ.Clone()}
	g.values[name] = v

	return v
}

// Value returns the value registered under name, or nil.
func (g *Graph) Value(name string) *Value {
	return g.values[name]
}

// HasValue reports whether name is registered in this graph's value table.
// Names referenced only by nested nodes still appear here, through the
// implicit inputs of their control-flow ancestors.
func (g *Graph) HasValue(name string) bool {
	_, ok := g.values[name]
	return ok
}

// SetInputs replaces the declared input list (inputs including
// initializers). Values passed in must belong to this graph's value table.
func (g *Graph) SetInputs(inputs []*Value) {
	g.inputs = append([]*Value(nil), inputs...)
	g.inputsSet = true
}

// Inputs returns the declared inputs, including any declared initializers.
func (g *Graph) Inputs() []*Value {
	return g.inputs
}

// InputsSet reports whether the input list was installed explicitly, either
// by a caller or by a completed Resolve.
func (g *Graph) InputsSet() bool { return g.inputsSet }

// SetOutputs replaces the declared output list.
func (g *Graph) SetOutputs(outputs []*Value) {
	g.outputs = append([]*Value(nil), outputs...)
}

func (g *Graph) Outputs() []*Value {
	return g.outputs
}

// AddInitializer registers a constant tensor under name and returns its
// value. The value's type is derived from the tensor.
func (g *Graph) AddInitializer(name string, t *tensor.Tensor) (*Value, error) {
	if t == nil {
		return nil, fmt.Errorf("graph: initializer %q has nil tensor", name)
	}

	if _, ok := g.initializers[name]; ok {
		return nil, fmt.Errorf("graph: duplicate initializer %q", name)
	}

	g.initializers[name] = t
	g.initializerOrder = append(g.initializerOrder, name)

	return g.ValueRef(name, TypeOf(t)), nil
}

// Initializer returns the constant tensor registered under name.
func (g *Graph) Initializer(name string) (*tensor.Tensor, bool) {
	t, ok := g.initializers[name]
	return t, ok
}

// InitializerNames returns the initializer names in registration order.
func (g *Graph) InitializerNames() []string {
	return append([]string(nil), g.initializerOrder...)
}

// MarkOuterScope records that name is visible in this graph through an
// enclosing scope rather than a declared input. Marking is idempotent.
func (g *Graph) MarkOuterScope(name string) {
	g.outerScope[name] = struct{}{}
}

// IsOuterScopeName reports whether name was marked as outer-scope visible.
func (g *Graph) IsOuterScopeName(name string) bool {
	_, ok := g.outerScope[name]
	return ok
}

// OuterScopeNames returns the marked names in sorted order.
func (g *Graph) OuterScopeNames() []string {
	out := make([]string, 0, len(g.outerScope))
	for name := range g.outerScope {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Depth returns how many parent graphs sit above this one.
func (g *Graph) Depth() int {
	depth := 0
	for p := g.parentGraph; p != nil; p = p.parentGraph {
		depth++
	}

	return depth
}

// Root walks parent links to the top-level graph of this tree.
func (g *Graph) Root() *Graph {
	root := g
	for root.parentGraph != nil {
		root = root.parentGraph
	}

	return root
}

func (g *Graph) addNode(n *Node) {
	n.graph = g
	n.index = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

// attachSubgraph wires child under node as the attrName control-flow graph
// and sets the child's parent back-references.
func (g *Graph) attachSubgraph(n *Node, attrName string, child *Graph) {
	if n.subgraphs == nil {
		n.subgraphs = map[string]*Graph{}
	}

	n.subgraphs[attrName] = child
	n.subgraphOrder = append(n.subgraphOrder, attrName)
	child.parentNode = n
	child.parentGraph = g
}

// TopoOrder returns live node slot indices in a topological order over value
// dependencies, including implicit inputs. Ties keep ascending slot order.
func (g *Graph) TopoOrder() ([]int, error) {
	producer := map[string]int{}
	for i, n := range g.nodes {
		if n == nil {
			continue
		}

		for _, out := range n.outputs {
			producer[out.Name()] = i
		}
	}

	indegree := map[int]int{}
	consumers := map[int][]int{}

	for i, n := range g.nodes {
		if n == nil {
			continue
		}

		indegree[i] = 0
	}

	addEdge := func(consumer int, name string) {
		p, ok := producer[name]
		if !ok || p == consumer {
			return
		}

		consumers[p] = append(consumers[p], consumer)
		indegree[consumer]++
	}

	for i, n := range g.nodes {
		if n == nil {
			continue
		}

		for _, in := range n.inputs {
			addEdge(i, in.Name())
		}

		for _, in := range n.implicit {
			addEdge(i, in.Name())
		}
	}

	queue := make([]int, 0, len(indegree))
	for i, n := range g.nodes {
		if n == nil {
			continue
		}

		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(indegree))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)

		for _, c := range consumers[i] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) != len(indegree) {
		return nil, fmt.Errorf("graph: %q contains a cycle", g.name)
	}

	return order, nil
}
