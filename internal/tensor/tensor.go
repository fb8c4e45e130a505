package tensor

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DType identifies the element type of a Tensor.
type DType string

const (
	Float32 DType = "float32"
	Int64   DType = "int64"
	Bool    DType = "bool"
)

// ParseDType converts a dtype string from a model file to a DType.
// Accepts the common aliases emitted by exporters ("float", "i64", "long").
func ParseDType(raw string) (DType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimPrefix(normalized, "tensor(")
	normalized = strings.TrimSuffix(normalized, ")")
	switch normalized {
	case "float", "float32", "f32":
		return Float32, nil
	case "int64", "i64", "long":
		return Int64, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return "", fmt.Errorf("tensor: unsupported dtype %q", raw)
	}
}

// Tensor is a dense, row-major tensor tagged with its element type.
// The zero value is not usable; construct via NewFloat32/NewInt64/NewBool/Zeros.
type Tensor struct {
	dtype DType
	shape []int64
	data  any // []float32, []int64 or []bool; len equals ElemCount
}

// NewFloat32 creates a float32 tensor from data and shape. Data is copied.
func NewFloat32(data []float32, shape []int64) (*Tensor, error) {
	if err := validateShape(shape, len(data)); err != nil {
		return nil, err
	}

	return &Tensor{
		dtype: Float32,
		shape: append([]int64(nil), shape...),
		data:  append([]float32(nil), data...),
	}, nil
}

// NewInt64 creates an int64 tensor from data and shape. Data is copied.
func NewInt64(data []int64, shape []int64) (*Tensor, error) {
	if err := validateShape(shape, len(data)); err != nil {
		return nil, err
	}

	return &Tensor{
		dtype: Int64,
		shape: append([]int64(nil), shape...),
		data:  append([]int64(nil), data...),
	}, nil
}

// NewBool creates a bool tensor from data and shape. Data is copied.
func NewBool(data []bool, shape []int64) (*Tensor, error) {
	if err := validateShape(shape, len(data)); err != nil {
		return nil, err
	}

	return &Tensor{
		dtype: Bool,
		shape: append([]int64(nil), shape...),
		data:  append([]bool(nil), data...),
	}, nil
}

// Zeros creates a zero-initialized tensor of the given dtype and shape.
func Zeros(dtype DType, shape []int64) (*Tensor, error) {
	total, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	t := &Tensor{dtype: dtype, shape: append([]int64(nil), shape...)}
	switch dtype {
	case Float32:
		t.data = make([]float32, total)
	case Int64:
		t.data = make([]int64, total)
	case Bool:
		t.data = make([]bool, total)
	default:
		return nil, fmt.Errorf("tensor: unsupported dtype %q", dtype)
	}

	return t, nil
}

// Scalar creates a rank-0 float32 tensor.
func Scalar(v float32) *Tensor {
	t, _ := NewFloat32([]float32{v}, nil)
	return t
}

// ScalarInt64 creates a rank-0 int64 tensor.
func ScalarInt64(v int64) *Tensor {
	t, _ := NewInt64([]int64{v}, nil)
	return t
}

// ScalarBool creates a rank-0 bool tensor.
func ScalarBool(v bool) *Tensor {
	t, _ := NewBool([]bool{v}, nil)
	return t
}

func (t *Tensor) DType() DType {
	if t == nil {
		return ""
	}

	return t.dtype
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	switch d := t.data.(type) {
	case []float32:
		return len(d)
	case []int64:
		return len(d)
	case []bool:
		return len(d)
	default:
		return 0
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	dup := &Tensor{dtype: t.dtype, shape: append([]int64(nil), t.shape...)}
	switch d := t.data.(type) {
	case []float32:
		dup.data = append([]float32(nil), d...)
	case []int64:
		dup.data = append([]int64(nil), d...)
	case []bool:
		dup.data = append([]bool(nil), d...)
	}

	return dup
}

// Reshape returns a copy with a new shape holding the same elements.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != t.ElemCount() {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, t.ElemCount(), shape, total)
	}

	dup := t.Clone()
	dup.shape = append([]int64(nil), shape...)

	return dup, nil
}

// Float32s returns the underlying float32 data. Callers must treat it as read-only.
func (t *Tensor) Float32s() ([]float32, error) {
	if t == nil {
		return nil, errors.New("tensor: nil tensor")
	}

	d, ok := t.data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor: expected float32 data, have %s", t.dtype)
	}

	return d, nil
}

// Int64s returns the underlying int64 data. Callers must treat it as read-only.
func (t *Tensor) Int64s() ([]int64, error) {
	if t == nil {
		return nil, errors.New("tensor: nil tensor")
	}

	d, ok := t.data.([]int64)
	if !ok {
		return nil, fmt.Errorf("tensor: expected int64 data, have %s", t.dtype)
	}

	return d, nil
}

// Bools returns the underlying bool data. Callers must treat it as read-only.
func (t *Tensor) Bools() ([]bool, error) {
	if t == nil {
		return nil, errors.New("tensor: nil tensor")
	}

	d, ok := t.data.([]bool)
	if !ok {
		return nil, fmt.Errorf("tensor: expected bool data, have %s", t.dtype)
	}

	return d, nil
}

// ScalarBoolValue extracts the single element of a bool tensor.
func (t *Tensor) ScalarBoolValue() (bool, error) {
	d, err := t.Bools()
	if err != nil {
		return false, err
	}

	if len(d) != 1 {
		return false, fmt.Errorf("tensor: expected a single-element bool tensor, have %d elements", len(d))
	}

	return d[0], nil
}

// ScalarInt64Value extracts the single element of an int64 tensor.
func (t *Tensor) ScalarInt64Value() (int64, error) {
	d, err := t.Int64s()
	if err != nil {
		return 0, err
	}

	if len(d) != 1 {
		return 0, fmt.Errorf("tensor: expected a single-element int64 tensor, have %d elements", len(d))
	}

	return d[0], nil
}

// String renders a short description like "float32[2 3]".
func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%s%v", t.dtype, t.shape)
}

// Equal reports whether two tensors have identical dtype, shape and elements.
func Equal(a, b *Tensor) bool {
	if a == nil || b == nil {
		return a == b
	}

	if a.dtype != b.dtype || !equalShape(a.shape, b.shape) {
		return false
	}

	switch ad := a.data.(type) {
	case []float32:
		bd := b.data.([]float32)
		for i := range ad {
			if ad[i] != bd[i] {
				return false
			}
		}
	case []int64:
		bd := b.data.([]int64)
		for i := range ad {
			if ad[i] != bd[i] {
				return false
			}
		}
	case []bool:
		bd := b.data.([]bool)
		for i := range ad {
			if ad[i] != bd[i] {
				return false
			}
		}
	}

	return true
}

// AllClose reports whether two float32 tensors match within tol elementwise.
func AllClose(a, b *Tensor, tol float64) bool {
	if a == nil || b == nil {
		return a == b
	}

	if !equalShape(a.shape, b.shape) {
		return false
	}

	ad, errA := a.Float32s()
	bd, errB := b.Float32s()
	if errA != nil || errB != nil {
		return false
	}

	for i := range ad {
		if math.Abs(float64(ad[i]-bd[i])) > tol {
			return false
		}
	}

	return true
}

func validateShape(shape []int64, dataLen int) error {
	total, err := elemCount(shape)
	if err != nil {
		return err
	}

	if total != dataLen {
		return fmt.Errorf("tensor: shape %v expects %d elements, got %d", shape, total, dataLen)
	}

	return nil
}

func elemCount(shape []int64) (int, error) {
	total := int64(1)
	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("tensor: shape %v has negative dimension at %d", shape, i)
		}

		if d > 0 && total > math.MaxInt64/d {
			return 0, fmt.Errorf("tensor: shape %v overflows element count", shape)
		}

		total *= d
	}

	if total > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("tensor: shape %v exceeds platform int size", shape)
	}

	return int(total), nil
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
