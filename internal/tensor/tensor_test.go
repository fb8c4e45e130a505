package tensor

import (
	"strings"
	"testing"
)

func TestParseDType(t *testing.T) {
	cases := map[string]DType{
		"float32":       Float32,
		"float":         Float32,
		"tensor(float)": Float32,
		"int64":         Int64,
		"i64":           Int64,
		"tensor(int64)": Int64,
		"bool":          Bool,
		"tensor(bool)":  Bool,
		" Float32 ":     Float32,
	}

	for raw, want := range cases {
		got, err := ParseDType(raw)
		if err != nil {
			t.Fatalf("ParseDType(%q) error: %v", raw, err)
		}

		if got != want {
			t.Fatalf("ParseDType(%q) = %s, want %s", raw, got, want)
		}
	}

	if _, err := ParseDType("float64"); err == nil {
		t.Fatal("expected error for unsupported dtype")
	}
}

func TestNewShapeValidation(t *testing.T) {
	if _, err := NewFloat32([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Fatal("expected shape/data mismatch error")
	}

	if _, err := NewInt64([]int64{1}, []int64{-1}); err == nil {
		t.Fatal("expected negative dimension error")
	}

	tt, err := NewFloat32([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("NewFloat32 error: %v", err)
	}

	if tt.Rank() != 2 || tt.ElemCount() != 6 || tt.DType() != Float32 {
		t.Fatalf("unexpected tensor metadata: rank=%d elems=%d dtype=%s", tt.Rank(), tt.ElemCount(), tt.DType())
	}
}

func TestNewCopiesData(t *testing.T) {
	src := []float32{1, 2}

	tt, err := NewFloat32(src, []int64{2})
	if err != nil {
		t.Fatalf("NewFloat32 error: %v", err)
	}

	src[0] = 99

	d, err := tt.Float32s()
	if err != nil {
		t.Fatalf("Float32s error: %v", err)
	}

	if d[0] != 1 {
		t.Fatalf("constructor must copy data, got %v", d)
	}
}

func TestZeros(t *testing.T) {
	tt, err := Zeros(Int64, []int64{2, 2})
	if err != nil {
		t.Fatalf("Zeros error: %v", err)
	}

	d, err := tt.Int64s()
	if err != nil {
		t.Fatalf("Int64s error: %v", err)
	}

	for i, v := range d {
		if v != 0 {
			t.Fatalf("element %d = %d, want 0", i, v)
		}
	}

	if _, err := Zeros(DType("float64"), []int64{1}); err == nil {
		t.Fatal("expected error for unsupported dtype")
	}
}

func TestCloneIndependence(t *testing.T) {
	a, err := NewBool([]bool{true, false}, []int64{2})
	if err != nil {
		t.Fatalf("NewBool error: %v", err)
	}

	b := a.Clone()

	bd, err := b.Bools()
	if err != nil {
		t.Fatalf("Bools error: %v", err)
	}

	bd[0] = false

	ad, _ := a.Bools()
	if !ad[0] {
		t.Fatal("clone must not alias the original data")
	}
}

func TestReshape(t *testing.T) {
	a, err := NewFloat32([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("NewFloat32 error: %v", err)
	}

	b, err := a.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("Reshape error: %v", err)
	}

	if got := b.Shape(); got[0] != 3 || got[1] != 2 {
		t.Fatalf("unexpected reshaped shape %v", got)
	}

	if _, err := a.Reshape([]int64{4}); err == nil {
		t.Fatal("expected element count mismatch error")
	}
}

func TestScalarExtraction(t *testing.T) {
	cond := ScalarBool(true)

	v, err := cond.ScalarBoolValue()
	if err != nil {
		t.Fatalf("ScalarBoolValue error: %v", err)
	}

	if !v {
		t.Fatal("expected true")
	}

	trip := ScalarInt64(7)

	n, err := trip.ScalarInt64Value()
	if err != nil {
		t.Fatalf("ScalarInt64Value error: %v", err)
	}

	if n != 7 {
		t.Fatalf("got %d, want 7", n)
	}

	multi, _ := NewInt64([]int64{1, 2}, []int64{2})
	if _, err := multi.ScalarInt64Value(); err == nil {
		t.Fatal("expected error for multi-element tensor")
	}

	if _, err := Scalar(1.5).ScalarBoolValue(); err == nil {
		t.Fatal("expected dtype mismatch error")
	}
}

func TestTypedAccessorMismatch(t *testing.T) {
	a := Scalar(1)

	if _, err := a.Int64s(); err == nil || !strings.Contains(err.Error(), "expected int64") {
		t.Fatalf("expected int64 mismatch error, got %v", err)
	}

	if _, err := a.Bools(); err == nil {
		t.Fatal("expected bool mismatch error")
	}
}

func TestEqual(t *testing.T) {
	a, _ := NewFloat32([]float32{1, 2}, []int64{2})
	b, _ := NewFloat32([]float32{1, 2}, []int64{2})
	c, _ := NewFloat32([]float32{1, 3}, []int64{2})
	d, _ := NewFloat32([]float32{1, 2}, []int64{1, 2})

	if !Equal(a, b) {
		t.Fatal("identical tensors must compare equal")
	}

	if Equal(a, c) {
		t.Fatal("different data must not compare equal")
	}

	if Equal(a, d) {
		t.Fatal("different shapes must not compare equal")
	}

	if Equal(a, ScalarInt64(1)) {
		t.Fatal("different dtypes must not compare equal")
	}
}

func TestString(t *testing.T) {
	a, _ := NewFloat32([]float32{1, 2}, []int64{1, 2})
	if got := a.String(); got != "float32[1 2]" {
		t.Fatalf("String() = %q", got)
	}
}
