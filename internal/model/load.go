package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/safetensors"
	"github.com/example/go-graphsplit/internal/tensor"
)

// Load reads a model file and builds its graph tree. weightsPath names the
// safetensors file holding external initializers; it may be empty when every
// initializer is inline.
func Load(path, weightsPath string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}

	var file File

	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("model: parse %s: %w", path, err)
	}

	if file.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("model: %s has format version %d, want %d", path, file.FormatVersion, FormatVersion)
	}

	var store *safetensors.Store

	if needsExternalWeights(&file.Graph) {
		if weightsPath == "" {
			return nil, fmt.Errorf("model: %s references external weights but no weights file was given", path)
		}

		store, err = safetensors.OpenStore(weightsPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	g, err := buildGraph(&file.Graph, store)
	if err != nil {
		return nil, fmt.Errorf("model: %s: %w", path, err)
	}

	return g, nil
}

// LoadBytes builds a graph tree from an in-memory model document. External
// initializers are not supported on this path.
func LoadBytes(data []byte) (*graph.Graph, error) {
	var file File

	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("model: parse document: %w", err)
	}

	if file.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("model: document has format version %d, want %d", file.FormatVersion, FormatVersion)
	}

	g, err := buildGraph(&file.Graph, nil)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	return g, nil
}

func needsExternalWeights(spec *GraphSpec) bool {
	for _, init := range spec.Initializers {
		if init.External {
			return true
		}
	}

	for _, node := range spec.Nodes {
		for _, attr := range node.Attrs {
			if attr.Graph != nil && needsExternalWeights(attr.Graph) {
				return true
			}
		}
	}

	return false
}

func buildGraph(spec *GraphSpec, store *safetensors.Store) (*graph.Graph, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("graph name must not be empty")
	}

	g := graph.New(spec.Name)

	for _, init := range spec.Initializers {
		t, err := specToTensor(&init, store)
		if err != nil {
			return nil, fmt.Errorf("graph %q initializer %q: %w", spec.Name, init.Name, err)
		}

		if _, err := g.AddInitializer(init.Name, t); err != nil {
			return nil, err
		}
	}

	for _, node := range spec.Nodes {
		if err := buildNode(g, &node, store); err != nil {
			return nil, fmt.Errorf("graph %q node %q: %w", spec.Name, node.Name, err)
		}
	}

	if len(spec.Inputs) > 0 {
		inputs := make([]*graph.Value, 0, len(spec.Inputs))

		for _, in := range spec.Inputs {
			typ, err := specToType(&in)
			if err != nil {
				return nil, fmt.Errorf("graph %q input %q: %w", spec.Name, in.Name, err)
			}

			inputs = append(inputs, g.ValueRef(in.Name, typ))
		}

		g.SetInputs(inputs)
	}

	if len(spec.Outputs) == 0 {
		return nil, fmt.Errorf("graph %q declares no outputs", spec.Name)
	}

	outputs := make([]*graph.Value, 0, len(spec.Outputs))

	for _, out := range spec.Outputs {
		typ, err := specToType(&out)
		if err != nil {
			return nil, fmt.Errorf("graph %q output %q: %w", spec.Name, out.Name, err)
		}

		outputs = append(outputs, g.ValueRef(out.Name, typ))
	}

	g.SetOutputs(outputs)

	return g, nil
}

func buildNode(g *graph.Graph, spec *NodeSpec, store *safetensors.Store) error {
	b := g.NewNode(spec.Name, spec.Op)

	if spec.Domain != "" {
		b = b.Domain(spec.Domain)
	}

	b = b.In(spec.Inputs...).Out(spec.Outputs...)

	for _, attr := range spec.Attrs {
		switch attr.Type {
		case "int":
			b = b.AttrInt(attr.Name, attr.I)
		case "ints":
			b = b.AttrInts(attr.Name, attr.Ints)
		case "float":
			b = b.AttrFloat(attr.Name, attr.F)
		case "floats":
			b = b.AttrFloats(attr.Name, attr.Floats)
		case "string":
			b = b.AttrString(attr.Name, attr.S)
		case "tensor":
			if attr.Tensor == nil {
				return fmt.Errorf("tensor attribute %q has no payload", attr.Name)
			}

			t, err := specToTensor(attr.Tensor, store)
			if err != nil {
				return fmt.Errorf("tensor attribute %q: %w", attr.Name, err)
			}

			b = b.AttrTensor(attr.Name, t)
		case "graph":
			if attr.Graph == nil {
				return fmt.Errorf("graph attribute %q has no payload", attr.Name)
			}

			child, err := buildGraph(attr.Graph, store)
			if err != nil {
				return fmt.Errorf("graph attribute %q: %w", attr.Name, err)
			}

			b = b.AttrGraph(attr.Name, child)
		default:
			return fmt.Errorf("attribute %q has unknown type %q", attr.Name, attr.Type)
		}
	}

	_, err := b.Add()

	return err
}

func specToType(spec *ValueSpec) (*graph.TypeInfo, error) {
	if spec.DType == "" {
		return nil, nil
	}

	dtype, err := tensor.ParseDType(spec.DType)
	if err != nil {
		return nil, err
	}

	return &graph.TypeInfo{DType: dtype, Shape: spec.Shape}, nil
}

// TensorFromSpec builds a tensor from an inline spec, for callers embedding
// tensor literals in their own documents. External references are rejected.
func TensorFromSpec(spec *TensorSpec) (*tensor.Tensor, error) {
	if spec.External {
		return nil, fmt.Errorf("model: tensor spec %q is external", spec.Name)
	}

	return specToTensor(spec, nil)
}

func specToTensor(spec *TensorSpec, store *safetensors.Store) (*tensor.Tensor, error) {
	if spec.External {
		if store == nil {
			return nil, fmt.Errorf("external tensor but no weights store is open")
		}

		return store.Tensor(spec.Name)
	}

	dtype, err := tensor.ParseDType(spec.DType)
	if err != nil {
		return nil, err
	}

	switch dtype {
	case tensor.Float32:
		return tensor.NewFloat32(spec.FloatData, spec.Shape)
	case tensor.Int64:
		return tensor.NewInt64(spec.IntData, spec.Shape)
	case tensor.Bool:
		return tensor.NewBool(spec.BoolData, spec.Shape)
	default:
		return nil, fmt.Errorf("unsupported dtype %q", spec.DType)
	}
}
