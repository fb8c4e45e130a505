package graph

import (
	"github.com/example/go-graphsplit/internal/tensor"
)

// AttrKind discriminates the payload of an Attribute.
type AttrKind int

const (
	AttrInt AttrKind = iota + 1
	AttrInts
	AttrFloat
	AttrFloats
	AttrString
	AttrTensor
	AttrGraph
)

func (k AttrKind) String() string {
	switch k {
	case AttrInt:
		return "int"
	case AttrInts:
		return "ints"
	case AttrFloat:
		return "float"
	case AttrFloats:
		return "floats"
	case AttrString:
		return "string"
	case AttrTensor:
		return "tensor"
	case AttrGraph:
		return "graph"
	default:
		return "unknown"
	}
}

// Attribute is an explicit (name, value) record attached to a node. Exactly
// one payload field is set, selected by Kind. Graph-kind attributes carry
// control-flow subgraphs and are mirrored in the node's subgraph map.
type Attribute struct {
	Name   string
	Kind   AttrKind
	I      int64
	Ints   []int64
	F      float32
	Floats []float32
	S      string
	T      *tensor.Tensor
	G      *Graph
}

// Node belongs to exactly one graph. Control-flow nodes own named child
// graphs (one per graph-kind attribute) and expose implicit inputs: values
// their child graphs capture from enclosing scopes by closure rather than by
// declared graph input. Implicit inputs are computed during Resolve.
type Node struct {
	name    string
	opType  string
	domain  string
	inputs  []*Value
	outputs []*Value

	attrs     map[string]*Attribute
	attrOrder []string

	subgraphs     map[string]*Graph
	subgraphOrder []string

	implicit []*Value

	graph *Graph
	index int
}

func (n *Node) Name() string   { return n.name }
func (n *Node) OpType() string { return n.opType }
func (n *Node) Domain() string { return n.domain }

// Index returns the node's slot index within its owning graph.
func (n *Node) Index() int { return n.index }

// Graph returns the graph this node belongs to.
func (n *Node) Graph() *Graph { return n.graph }

// Inputs returns the ordered explicit input values.
func (n *Node) Inputs() []*Value { return n.inputs }

// Outputs returns the ordered output values.
func (n *Node) Outputs() []*Value { return n.outputs }

// ImplicitInputs returns the values the node's child graphs capture from
// enclosing scopes. Empty until the owning tree has been resolved.
func (n *Node) ImplicitInputs() []*Value { return n.implicit }

// Attr returns the attribute record with the given name, or nil.
func (n *Node) Attr(name string) *Attribute {
	return n.attrs[name]
}

// Attrs returns the attribute records in insertion order.
func (n *Node) Attrs() []*Attribute {
	out := make([]*Attribute, 0, len(n.attrOrder))
	for _, name := range n.attrOrder {
		out = append(out, n.attrs[name])
	}

	return out
}

// AttrInt returns the int payload of the named attribute, or def when the
// attribute is absent or not int-kind.
func (n *Node) AttrInt(name string, def int64) int64 {
	a := n.attrs[name]
	if a == nil || a.Kind != AttrInt {
		return def
	}

	return a.I
}

// AttrFloat returns the float payload of the named attribute, or def.
func (n *Node) AttrFloat(name string, def float32) float32 {
	a := n.attrs[name]
	if a == nil || a.Kind != AttrFloat {
		return def
	}

	return a.F
}

// AttrString returns the string payload of the named attribute, or def.
func (n *Node) AttrString(name, def string) string {
	a := n.attrs[name]
	if a == nil || a.Kind != AttrString {
		return def
	}

	return a.S
}

// AttrInts returns the int-list payload of the named attribute, or nil.
func (n *Node) AttrInts(name string) []int64 {
	a := n.attrs[name]
	if a == nil || a.Kind != AttrInts {
		return nil
	}

	return a.Ints
}

// AttrTensor returns the tensor payload of the named attribute, or nil.
func (n *Node) AttrTensor(name string) *tensor.Tensor {
	a := n.attrs[name]
	if a == nil || a.Kind != AttrTensor {
		return nil
	}

	return a.T
}

// Subgraph returns the child graph stored under the given attribute name.
func (n *Node) Subgraph(attrName string) *Graph {
	return n.subgraphs[attrName]
}

// Subgraphs returns the attribute-name → child-graph map. The map is live;
// callers must not mutate it directly.
func (n *Node) Subgraphs() map[string]*Graph {
	return n.subgraphs
}

// SubgraphNames returns the child-graph attribute names in insertion order.
func (n *Node) SubgraphNames() []string {
	return append([]string(nil), n.subgraphOrder...)
}

func (n *Node) setImplicit(values []*Value) {
	n.implicit = values
}
