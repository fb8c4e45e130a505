package graph

import (
	"errors"
	"fmt"

	"github.com/example/go-graphsplit/internal/tensor"
)

// NodeBuilder accumulates everything a node needs — inputs, outputs and
// explicit attribute records — and applies it all at once when Add creates
// the node. Error state is carried along the chain and surfaces from Add.
type NodeBuilder struct {
	g       *Graph
	name    string
	opType  string
	domain  string
	inputs  []string
	outputs []string
	attrs   []*Attribute
	err     error
}

// NewNode starts a builder for a node named name with the given op type.
func (g *Graph) NewNode(name, opType string) *NodeBuilder {
	b := &NodeBuilder{g: g, name: name, opType: opType}
	if name == "" {
		b.err = errors.New("graph: node name must not be empty")
	}

	if opType == "" {
		b.err = errors.New("graph: node op type must not be empty")
	}

	return b
}

// Domain tags the node with a backend domain.
func (b *NodeBuilder) Domain(domain string) *NodeBuilder {
	b.domain = domain
	return b
}

// In appends input value names.
func (b *NodeBuilder) In(names ...string) *NodeBuilder {
	b.inputs = append(b.inputs, names...)
	return b
}

// Out appends output value names.
func (b *NodeBuilder) Out(names ...string) *NodeBuilder {
	b.outputs = append(b.outputs, names...)
	return b
}

// AttrInt records an int attribute.
func (b *NodeBuilder) AttrInt(name string, v int64) *NodeBuilder {
	return b.attr(&Attribute{Name: name, Kind: AttrInt, I: v})
}

// AttrInts records an int-list attribute.
func (b *NodeBuilder) AttrInts(name string, v []int64) *NodeBuilder {
	return b.attr(&Attribute{Name: name, Kind: AttrInts, Ints: append([]int64(nil), v...)})
}

// AttrFloat records a float attribute.
func (b *NodeBuilder) AttrFloat(name string, v float32) *NodeBuilder {
	return b.attr(&Attribute{Name: name, Kind: AttrFloat, F: v})
}

// AttrFloats records a float-list attribute.
func (b *NodeBuilder) AttrFloats(name string, v []float32) *NodeBuilder {
	return b.attr(&Attribute{Name: name, Kind: AttrFloats, Floats: append([]float32(nil), v...)})
}

// AttrString records a string attribute.
func (b *NodeBuilder) AttrString(name, v string) *NodeBuilder {
	return b.attr(&Attribute{Name: name, Kind: AttrString, S: v})
}

// AttrTensor records a tensor attribute.
func (b *NodeBuilder) AttrTensor(name string, v *tensor.Tensor) *NodeBuilder {
	if v == nil {
		b.fail(fmt.Errorf("graph: tensor attribute %q is nil", name))
		return b
	}

	return b.attr(&Attribute{Name: name, Kind: AttrTensor, T: v})
}

// AttrGraph records a control-flow subgraph attribute. The child graph must
// not already belong to another parent node.
func (b *NodeBuilder) AttrGraph(name string, child *Graph) *NodeBuilder {
	if child == nil {
		b.fail(fmt.Errorf("graph: subgraph attribute %q is nil", name))
		return b
	}

	if child.parentNode != nil {
		b.fail(fmt.Errorf("graph: subgraph %q already belongs to node %q", child.Name(), child.parentNode.Name()))
		return b
	}

	return b.attr(&Attribute{Name: name, Kind: AttrGraph, G: child})
}

func (b *NodeBuilder) attr(a *Attribute) *NodeBuilder {
	for _, existing := range b.attrs {
		if existing.Name == a.Name {
			b.fail(fmt.Errorf("graph: duplicate attribute %q on node %q", a.Name, b.name))
			return b
		}
	}

	b.attrs = append(b.attrs, a)

	return b
}

func (b *NodeBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Add creates the node in the builder's graph, applying the accumulated
// attribute records and attaching subgraph attributes with parent links.
func (b *NodeBuilder) Add() (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}

	if len(b.outputs) == 0 {
		return nil, fmt.Errorf("graph: node %q must have at least one output", b.name)
	}

	for _, n := range b.g.nodes {
		if n != nil && n.name == b.name {
			return nil, fmt.Errorf("graph: duplicate node name %q in graph %q", b.name, b.g.name)
		}
	}

	node := &Node{
		name:   b.name,
		opType: b.opType,
		domain: b.domain,
		attrs:  map[string]*Attribute{},
	}

	for _, name := range b.inputs {
		node.inputs = append(node.inputs, b.g.ValueRef(name, nil))
	}

	for _, name := range b.outputs {
		node.outputs = append(node.outputs, b.g.ValueRef(name, nil))
	}

	b.g.addNode(node)

	for _, a := range b.attrs {
		node.attrs[a.Name] = a
		node.attrOrder = append(node.attrOrder, a.Name)

		if a.Kind == AttrGraph {
			b.g.attachSubgraph(node, a.Name, a.G)
		}
	}

	return node, nil
}

// MustAdd is Add for construction paths where the inputs are known valid,
// such as tests and fixtures. It panics on error.
func (b *NodeBuilder) MustAdd() *Node {
	n, err := b.Add()
	if err != nil {
		panic(err)
	}

	return n
}
