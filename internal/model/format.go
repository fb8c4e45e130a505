// Package model reads and writes the JSON graph format: nodes with
// attributes and nested subgraphs, declared inputs/outputs, and initializers
// stored either inline or in an external safetensors weights file.
package model

// File is the top-level document of a model file.
type File struct {
	FormatVersion int       `json:"format_version"`
	Graph         GraphSpec `json:"graph"`
}

// FormatVersion is the current file format version.
const FormatVersion = 1

// GraphSpec describes one graph. Subgraphs of control-flow nodes nest as
// graph-kind attributes.
type GraphSpec struct {
	Name         string       `json:"name"`
	Inputs       []ValueSpec  `json:"inputs,omitempty"`
	Outputs      []ValueSpec  `json:"outputs"`
	Initializers []TensorSpec `json:"initializers,omitempty"`
	Nodes        []NodeSpec   `json:"nodes"`
}

// ValueSpec declares a named value. DType and Shape are optional; absent
// type information is inferred during graph resolution.
type ValueSpec struct {
	Name  string  `json:"name"`
	DType string  `json:"dtype,omitempty"`
	Shape []int64 `json:"shape,omitempty"`
}

// TensorSpec carries a constant tensor. Exactly one of the data fields is
// set for inline tensors; External selects lookup by name in the weights
// file instead.
type TensorSpec struct {
	Name      string    `json:"name,omitempty"`
	DType     string    `json:"dtype,omitempty"`
	Shape     []int64   `json:"shape,omitempty"`
	FloatData []float32 `json:"float_data,omitempty"`
	IntData   []int64   `json:"int_data,omitempty"`
	BoolData  []bool    `json:"bool_data,omitempty"`
	External  bool      `json:"external,omitempty"`
}

// NodeSpec describes one node.
type NodeSpec struct {
	Name    string     `json:"name"`
	Op      string     `json:"op"`
	Domain  string     `json:"domain,omitempty"`
	Inputs  []string   `json:"inputs,omitempty"`
	Outputs []string   `json:"outputs"`
	Attrs   []AttrSpec `json:"attributes,omitempty"`
}

// AttrSpec is one node attribute. Type selects the payload field: "int",
// "ints", "float", "floats", "string", "tensor" or "graph".
type AttrSpec struct {
	Name   string      `json:"name"`
	Type   string      `json:"type"`
	I      int64       `json:"i,omitempty"`
	Ints   []int64     `json:"ints,omitempty"`
	F      float32     `json:"f,omitempty"`
	Floats []float32   `json:"floats,omitempty"`
	S      string      `json:"s,omitempty"`
	Tensor *TensorSpec `json:"tensor,omitempty"`
	Graph  *GraphSpec  `json:"graph,omitempty"`
}
