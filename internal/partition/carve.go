package partition

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/go-graphsplit/internal/graph"
)

// Region is a set of node slots in one graph claimed by a single backend,
// listed in topological order.
type Region struct {
	Indices []int
}

// Carved is the standalone rebuilt graph for a claimed region together with
// the node correspondence the scope resolver consumes.
type Carved struct {
	Graph *graph.Graph
	Corr  Correspondence
}

// Carve copies the region's nodes out of g into a fresh root graph, nested
// subgraph trees and same-level initializers included. The rebuilt graph
// gets a unique name, so graphs carved from identically named regions can
// be processed side by side. Declared inputs are deliberately left unset:
// the input finalizer or structural resolution computes them later.
func Carve(g *graph.Graph, region Region) (*Carved, error) {
	if len(region.Indices) == 0 {
		return nil, errors.New("partition: cannot carve an empty region")
	}

	claimed := make([]*graph.Node, 0, len(region.Indices))
	claimedSet := map[int]struct{}{}

	for _, idx := range region.Indices {
		node := g.Node(idx)
		if node == nil {
			return nil, fmt.Errorf("partition: region references empty node slot %d in graph %q", idx, g.Name())
		}

		claimed = append(claimed, node)
		claimedSet[idx] = struct{}{}
	}

	rebuilt := graph.New(fmt.Sprintf("%s_region_%s", g.Name(), uuid.NewString()))
	corr := Correspondence{}

	for _, node := range claimed {
		if err := copyNode(rebuilt, g, node, corr); err != nil {
			return nil, err
		}
	}

	// Region outputs: produced inside, consumed outside the region or
	// exported by the owning graph.
	needed := map[string]struct{}{}

	for i := 0; i < g.MaxNodeIndex(); i++ {
		node := g.Node(i)
		if node == nil {
			continue
		}

		if _, ok := claimedSet[i]; ok {
			continue
		}

		for _, in := range node.Inputs() {
			needed[in.Name()] = struct{}{}
		}

		for _, in := range node.ImplicitInputs() {
			needed[in.Name()] = struct{}{}
		}
	}

	for _, out := range g.Outputs() {
		needed[out.Name()] = struct{}{}
	}

	var outputs []*graph.Value

	for _, node := range claimed {
		for _, out := range node.Outputs() {
			if _, ok := needed[out.Name()]; ok {
				outputs = append(outputs, rebuilt.ValueRef(out.Name(), out.Type()))
			}
		}
	}

	if len(outputs) == 0 {
		return nil, fmt.Errorf("partition: region in graph %q produces nothing consumed outside it", g.Name())
	}

	rebuilt.SetOutputs(outputs)

	return &Carved{Graph: rebuilt, Corr: corr}, nil
}

func copyNode(dst, src *graph.Graph, node *graph.Node, corr Correspondence) error {
	b := dst.NewNode(node.Name(), node.OpType()).Domain(node.Domain())

	for _, in := range node.Inputs() {
		b.In(in.Name())
	}

	for _, out := range node.Outputs() {
		b.Out(out.Name())
	}

	for _, attr := range node.Attrs() {
		switch attr.Kind {
		case graph.AttrGraph:
			child, err := copySubgraph(attr.G, corr)
			if err != nil {
				return err
			}

			b.AttrGraph(attr.Name, child)
		case graph.AttrInt:
			b.AttrInt(attr.Name, attr.I)
		case graph.AttrInts:
			b.AttrInts(attr.Name, attr.Ints)
		case graph.AttrFloat:
			b.AttrFloat(attr.Name, attr.F)
		case graph.AttrFloats:
			b.AttrFloats(attr.Name, attr.Floats)
		case graph.AttrString:
			b.AttrString(attr.Name, attr.S)
		case graph.AttrTensor:
			b.AttrTensor(attr.Name, attr.T)
		}
	}

	added, err := b.Add()
	if err != nil {
		return fmt.Errorf("partition: copying node %q: %w", node.Name(), err)
	}

	corr[added] = node

	for _, in := range node.Inputs() {
		dst.ValueRef(in.Name(), in.Type())

		if err := copyInitializer(dst, src, in.Name()); err != nil {
			return err
		}
	}

	// Implicit inputs do not become inputs on the copy; structural
	// resolution recomputes them. Same-level constants they referenced
	// still travel with the region.
	for _, in := range node.ImplicitInputs() {
		if err := copyInitializer(dst, src, in.Name()); err != nil {
			return err
		}
	}

	for _, out := range node.Outputs() {
		dst.ValueRef(out.Name(), out.Type())
	}

	return nil
}

func copySubgraph(src *graph.Graph, corr Correspondence) (*graph.Graph, error) {
	dst := graph.New(src.Name())

	for _, name := range src.InitializerNames() {
		t, _ := src.Initializer(name)
		if _, err := dst.AddInitializer(name, t); err != nil {
			return nil, fmt.Errorf("partition: copying subgraph %q: %w", src.Name(), err)
		}
	}

	for i := 0; i < src.MaxNodeIndex(); i++ {
		node := src.Node(i)
		if node == nil {
			continue
		}

		if err := copyNode(dst, src, node, corr); err != nil {
			return nil, err
		}
	}

	if src.InputsSet() {
		inputs := make([]*graph.Value, 0, len(src.Inputs()))
		for _, in := range src.Inputs() {
			inputs = append(inputs, dst.ValueRef(in.Name(), in.Type()))
		}

		dst.SetInputs(inputs)
	}

	outputs := make([]*graph.Value, 0, len(src.Outputs()))
	for _, out := range src.Outputs() {
		outputs = append(outputs, dst.ValueRef(out.Name(), out.Type()))
	}

	dst.SetOutputs(outputs)

	return dst, nil
}

func copyInitializer(dst, src *graph.Graph, name string) error {
	t, ok := src.Initializer(name)
	if !ok {
		return nil
	}

	if _, ok := dst.Initializer(name); ok {
		return nil
	}

	if _, err := dst.AddInitializer(name, t); err != nil {
		return fmt.Errorf("partition: copying initializer %q: %w", name, err)
	}

	return nil
}
