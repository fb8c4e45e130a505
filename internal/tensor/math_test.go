package tensor

import (
	"math"
	"testing"
)

func mustF32(t *testing.T, data []float32, shape []int64) *Tensor {
	t.Helper()

	out, err := NewFloat32(data, shape)
	if err != nil {
		t.Fatalf("NewFloat32 error: %v", err)
	}

	return out
}

func mustI64(t *testing.T, data []int64, shape []int64) *Tensor {
	t.Helper()

	out, err := NewInt64(data, shape)
	if err != nil {
		t.Fatalf("NewInt64 error: %v", err)
	}

	return out
}

func equalF32(t *testing.T, got *Tensor, want []float32, tol float64) {
	t.Helper()

	d, err := got.Float32s()
	if err != nil {
		t.Fatalf("Float32s error: %v", err)
	}

	if len(d) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(d), len(want))
	}

	for i := range d {
		if math.Abs(float64(d[i]-want[i])) > tol {
			t.Fatalf("element %d: got %f, want %f", i, d[i], want[i])
		}
	}
}

func TestAddBroadcast(t *testing.T) {
	a := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	b := mustF32(t, []float32{10, 20, 30}, []int64{3})

	got, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if s := got.Shape(); s[0] != 2 || s[1] != 3 {
		t.Fatalf("unexpected shape %v", s)
	}

	equalF32(t, got, []float32{11, 22, 33, 14, 25, 36}, 0)
}

func TestAddInt64(t *testing.T) {
	a := mustI64(t, []int64{1, 2}, []int64{2})
	b := mustI64(t, []int64{5}, []int64{1})

	got, err := Add(a, b)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	d, _ := got.Int64s()
	if d[0] != 6 || d[1] != 7 {
		t.Fatalf("got %v, want [6 7]", d)
	}
}

func TestArithDTypeMismatch(t *testing.T) {
	a := Scalar(1)
	b := ScalarInt64(1)

	if _, err := Add(a, b); err == nil {
		t.Fatal("expected dtype mismatch error")
	}
}

func TestSubMulDiv(t *testing.T) {
	a := mustF32(t, []float32{8, 6, 4, 2}, []int64{4})
	b := mustF32(t, []float32{2, 2, 2, 2}, []int64{4})

	sub, err := Sub(a, b)
	if err != nil {
		t.Fatalf("Sub error: %v", err)
	}

	equalF32(t, sub, []float32{6, 4, 2, 0}, 0)

	mul, err := Mul(a, b)
	if err != nil {
		t.Fatalf("Mul error: %v", err)
	}

	equalF32(t, mul, []float32{16, 12, 8, 4}, 0)

	div, err := Div(a, b)
	if err != nil {
		t.Fatalf("Div error: %v", err)
	}

	equalF32(t, div, []float32{4, 3, 2, 1}, 0)
}

func TestDivIntZero(t *testing.T) {
	a := mustI64(t, []int64{4}, []int64{1})
	b := mustI64(t, []int64{0}, []int64{1})

	if _, err := Div(a, b); err == nil {
		t.Fatal("expected integer division by zero error")
	}
}

func TestBroadcastIncompatible(t *testing.T) {
	a := mustF32(t, []float32{1, 2, 3}, []int64{3})
	b := mustF32(t, []float32{1, 2}, []int64{2})

	if _, err := Add(a, b); err == nil {
		t.Fatal("expected broadcast error for shapes [3] and [2]")
	}
}

func TestGreaterLess(t *testing.T) {
	a := mustF32(t, []float32{1, 5, 3}, []int64{3})
	b := mustF32(t, []float32{2, 2, 3}, []int64{3})

	gt, err := Greater(a, b)
	if err != nil {
		t.Fatalf("Greater error: %v", err)
	}

	if gt.DType() != Bool {
		t.Fatalf("Greater dtype = %s, want bool", gt.DType())
	}

	gd, _ := gt.Bools()
	if gd[0] || !gd[1] || gd[2] {
		t.Fatalf("Greater result %v, want [false true false]", gd)
	}

	lt, err := Less(a, b)
	if err != nil {
		t.Fatalf("Less error: %v", err)
	}

	ld, _ := lt.Bools()
	if !ld[0] || ld[1] || ld[2] {
		t.Fatalf("Less result %v, want [true false false]", ld)
	}
}

func TestGreaterInt64Broadcast(t *testing.T) {
	a := mustI64(t, []int64{0, 5}, []int64{2})
	threshold := ScalarInt64(3)

	gt, err := Greater(a, threshold)
	if err != nil {
		t.Fatalf("Greater error: %v", err)
	}

	d, _ := gt.Bools()
	if d[0] || !d[1] {
		t.Fatalf("got %v, want [false true]", d)
	}
}

func TestNot(t *testing.T) {
	a, _ := NewBool([]bool{true, false}, []int64{2})

	got, err := Not(a)
	if err != nil {
		t.Fatalf("Not error: %v", err)
	}

	d, _ := got.Bools()
	if d[0] || !d[1] {
		t.Fatalf("got %v, want [false true]", d)
	}

	if _, err := Not(Scalar(1)); err == nil {
		t.Fatal("expected error for non-bool input")
	}
}

func TestRelu(t *testing.T) {
	a := mustF32(t, []float32{-2, 0, 3}, []int64{3})

	got, err := Relu(a)
	if err != nil {
		t.Fatalf("Relu error: %v", err)
	}

	equalF32(t, got, []float32{0, 0, 3}, 0)
}

func TestSoftmax(t *testing.T) {
	a := mustF32(t, []float32{1, 2, 3, 4}, []int64{2, 2})

	got, err := Softmax(a, -1)
	if err != nil {
		t.Fatalf("Softmax error: %v", err)
	}

	d, _ := got.Float32s()
	for row := 0; row < 2; row++ {
		sum := d[row*2] + d[row*2+1]
		if math.Abs(float64(sum)-1.0) > 1e-6 {
			t.Fatalf("row %d sums to %f, want 1", row, sum)
		}
	}

	if d[0] >= d[1] {
		t.Fatalf("softmax must be monotone in its input, got %v", d)
	}
}

func TestCast(t *testing.T) {
	f := mustF32(t, []float32{1.9, -2.1}, []int64{2})

	i, err := Cast(f, Int64)
	if err != nil {
		t.Fatalf("Cast error: %v", err)
	}

	id, _ := i.Int64s()
	if id[0] != 1 || id[1] != -2 {
		t.Fatalf("float->int cast got %v, want [1 -2]", id)
	}

	back, err := Cast(i, Float32)
	if err != nil {
		t.Fatalf("Cast error: %v", err)
	}

	equalF32(t, back, []float32{1, -2}, 0)

	b, _ := NewBool([]bool{true, false}, []int64{2})

	bf, err := Cast(b, Float32)
	if err != nil {
		t.Fatalf("Cast error: %v", err)
	}

	equalF32(t, bf, []float32{1, 0}, 0)

	if _, err := Cast(f, Bool); err == nil {
		t.Fatal("expected error casting float32 to bool")
	}

	same, err := Cast(f, Float32)
	if err != nil {
		t.Fatalf("Cast error: %v", err)
	}

	if !Equal(same, f) {
		t.Fatal("same-dtype cast must preserve values")
	}
}

func TestMatMul2D(t *testing.T) {
	a := mustF32(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	b := mustF32(t, []float32{7, 8, 9, 10, 11, 12}, []int64{3, 2})

	got, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul error: %v", err)
	}

	if s := got.Shape(); s[0] != 2 || s[1] != 2 {
		t.Fatalf("unexpected shape %v", s)
	}

	equalF32(t, got, []float32{58, 64, 139, 154}, 1e-5)
}

func TestMatMulBatchBroadcast(t *testing.T) {
	a := mustF32(t, []float32{
		1, 0,
		0, 1,

		2, 0,
		0, 2,
	}, []int64{2, 2, 2})
	b := mustF32(t, []float32{1, 2, 3, 4}, []int64{2, 2})

	got, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul error: %v", err)
	}

	if s := got.Shape(); s[0] != 2 || s[1] != 2 || s[2] != 2 {
		t.Fatalf("unexpected shape %v", s)
	}

	equalF32(t, got, []float32{1, 2, 3, 4, 2, 4, 6, 8}, 1e-5)
}

func TestMatMulMismatch(t *testing.T) {
	a := mustF32(t, []float32{1, 2, 3, 4}, []int64{2, 2})
	b := mustF32(t, []float32{1, 2, 3}, []int64{3, 1})

	if _, err := MatMul(a, b); err == nil {
		t.Fatal("expected inner dimension mismatch error")
	}

	if _, err := MatMul(a, Scalar(1)); err == nil {
		t.Fatal("expected rank error")
	}
}
