package graph

import (
	"fmt"

	"github.com/example/go-graphsplit/internal/tensor"
)

// TypeInfo describes a value's element type and shape.
// A dimension of -1 means the size is unknown until execution.
type TypeInfo struct {
	DType tensor.DType
	Shape []int64
}

// Clone returns a deep copy. Clone of nil is nil.
func (t *TypeInfo) Clone() *TypeInfo {
	if t == nil {
		return nil
	}

	return &TypeInfo{
		DType: t.DType,
		Shape: append([]int64(nil), t.Shape...),
	}
}

func (t *TypeInfo) String() string {
	if t == nil {
		return "?"
	}

	return fmt.Sprintf("%s%v", t.DType, t.Shape)
}

// TypeOf derives a TypeInfo from a tensor.
func TypeOf(t *tensor.Tensor) *TypeInfo {
	if t == nil {
		return nil
	}

	return &TypeInfo{DType: t.DType(), Shape: t.Shape()}
}

// Value is a named edge in a graph. A name may simultaneously be a node
// output, another node's input, a graph input, or an initializer. The type
// descriptor may be nil until structural resolution infers it.
type Value struct {
	name string
	typ  *TypeInfo
}

func (v *Value) Name() string {
	if v == nil {
		return ""
	}

	return v.name
}

func (v *Value) Type() *TypeInfo {
	if v == nil {
		return nil
	}

	return v.typ
}

// SetType installs a type descriptor, replacing any previous one.
func (v *Value) SetType(t *TypeInfo) {
	v.typ = t
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%s:%s", v.name, v.typ)
}
