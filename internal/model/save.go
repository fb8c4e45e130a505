package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/safetensors"
	"github.com/example/go-graphsplit/internal/tensor"
)

// Save writes the graph tree to a model file. When weightsPath is non-empty
// every initializer in the tree is written to that safetensors file and
// referenced externally; otherwise initializers are stored inline.
func Save(g *graph.Graph, path, weightsPath string) error {
	external := weightsPath != ""

	spec, err := graphToSpec(g, external)
	if err != nil {
		return fmt.Errorf("model: serialize graph %q: %w", g.Name(), err)
	}

	if external {
		weights := map[string]*tensor.Tensor{}

		if err := collectWeights(g, weights); err != nil {
			return fmt.Errorf("model: collect weights for %q: %w", g.Name(), err)
		}

		if err := safetensors.WriteFile(weightsPath, weights); err != nil {
			return err
		}
	}

	doc, err := json.MarshalIndent(File{FormatVersion: FormatVersion, Graph: *spec}, "", "  ")
	if err != nil {
		return fmt.Errorf("model: encode %s: %w", path, err)
	}

	doc = append(doc, '\n')

	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("model: write %s: %w", path, err)
	}

	return nil
}

func collectWeights(g *graph.Graph, weights map[string]*tensor.Tensor) error {
	for _, name := range g.InitializerNames() {
		if _, exists := weights[name]; exists {
			return fmt.Errorf("initializer name %q appears in more than one graph", name)
		}

		t, _ := g.Initializer(name)
		weights[name] = t
	}

	for _, n := range g.Nodes() {
		for _, attrName := range n.SubgraphNames() {
			if err := collectWeights(n.Subgraph(attrName), weights); err != nil {
				return err
			}
		}
	}

	return nil
}

func graphToSpec(g *graph.Graph, external bool) (*GraphSpec, error) {
	spec := &GraphSpec{Name: g.Name()}

	if g.InputsSet() {
		for _, in := range g.Inputs() {
			spec.Inputs = append(spec.Inputs, valueToSpec(in))
		}
	}

	for _, out := range g.Outputs() {
		spec.Outputs = append(spec.Outputs, valueToSpec(out))
	}

	for _, name := range g.InitializerNames() {
		if external {
			spec.Initializers = append(spec.Initializers, TensorSpec{Name: name, External: true})
			continue
		}

		t, _ := g.Initializer(name)

		ts, err := tensorToSpec(t)
		if err != nil {
			return nil, fmt.Errorf("initializer %q: %w", name, err)
		}

		ts.Name = name
		spec.Initializers = append(spec.Initializers, *ts)
	}

	for _, n := range g.Nodes() {
		ns, err := nodeToSpec(n, external)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name(), err)
		}

		spec.Nodes = append(spec.Nodes, *ns)
	}

	return spec, nil
}

func nodeToSpec(n *graph.Node, external bool) (*NodeSpec, error) {
	ns := &NodeSpec{
		Name:   n.Name(),
		Op:     n.OpType(),
		Domain: n.Domain(),
	}

	for _, in := range n.Inputs() {
		ns.Inputs = append(ns.Inputs, in.Name())
	}

	for _, out := range n.Outputs() {
		ns.Outputs = append(ns.Outputs, out.Name())
	}

	for _, a := range n.Attrs() {
		as := AttrSpec{Name: a.Name, Type: a.Kind.String()}

		switch a.Kind {
		case graph.AttrInt:
			as.I = a.I
		case graph.AttrInts:
			as.Ints = a.Ints
		case graph.AttrFloat:
			as.F = a.F
		case graph.AttrFloats:
			as.Floats = a.Floats
		case graph.AttrString:
			as.S = a.S
		case graph.AttrTensor:
			ts, err := tensorToSpec(a.T)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
			}

			as.Tensor = ts
		case graph.AttrGraph:
			child, err := graphToSpec(a.G, external)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
			}

			as.Graph = child
		default:
			return nil, fmt.Errorf("attribute %q has unknown kind %v", a.Name, a.Kind)
		}

		ns.Attrs = append(ns.Attrs, as)
	}

	return ns, nil
}

func valueToSpec(v *graph.Value) ValueSpec {
	spec := ValueSpec{Name: v.Name()}

	if typ := v.Type(); typ != nil {
		spec.DType = string(typ.DType)
		spec.Shape = typ.Shape
	}

	return spec
}

// TensorToSpec serializes a tensor to an inline spec.
func TensorToSpec(t *tensor.Tensor) (*TensorSpec, error) {
	return tensorToSpec(t)
}

func tensorToSpec(t *tensor.Tensor) (*TensorSpec, error) {
	spec := &TensorSpec{DType: string(t.DType()), Shape: t.Shape()}

	switch t.DType() {
	case tensor.Float32:
		vals, err := t.Float32s()
		if err != nil {
			return nil, err
		}

		spec.FloatData = vals
	case tensor.Int64:
		vals, err := t.Int64s()
		if err != nil {
			return nil, err
		}

		spec.IntData = vals
	case tensor.Bool:
		vals, err := t.Bools()
		if err != nil {
			return nil, err
		}

		spec.BoolData = vals
	default:
		return nil, fmt.Errorf("unsupported dtype %q", t.DType())
	}

	return spec, nil
}
