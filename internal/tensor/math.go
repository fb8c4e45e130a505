package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Add performs element-wise add with NumPy-style broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return broadcastArith(a, b, "add",
		func(x, y float32) (float32, error) { return x + y, nil },
		func(x, y int64) (int64, error) { return x + y, nil })
}

// Sub performs element-wise subtract with NumPy-style broadcasting.
func Sub(a, b *Tensor) (*Tensor, error) {
	return broadcastArith(a, b, "sub",
		func(x, y float32) (float32, error) { return x - y, nil },
		func(x, y int64) (int64, error) { return x - y, nil })
}

// Mul performs element-wise multiply with NumPy-style broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return broadcastArith(a, b, "mul",
		func(x, y float32) (float32, error) { return x * y, nil },
		func(x, y int64) (int64, error) { return x * y, nil })
}

// Div performs element-wise divide with NumPy-style broadcasting.
// Integer division by zero is an error; float division follows IEEE 754.
func Div(a, b *Tensor) (*Tensor, error) {
	return broadcastArith(a, b, "div",
		func(x, y float32) (float32, error) { return x / y, nil },
		func(x, y int64) (int64, error) {
			if y == 0 {
				return 0, errors.New("integer division by zero")
			}

			return x / y, nil
		})
}

// Greater compares element-wise with broadcasting and returns a bool tensor.
func Greater(a, b *Tensor) (*Tensor, error) {
	return broadcastCompare(a, b, "greater",
		func(x, y float32) bool { return x > y },
		func(x, y int64) bool { return x > y })
}

// Less compares element-wise with broadcasting and returns a bool tensor.
func Less(a, b *Tensor) (*Tensor, error) {
	return broadcastCompare(a, b, "less",
		func(x, y float32) bool { return x < y },
		func(x, y int64) bool { return x < y })
}

// Not negates a bool tensor element-wise.
func Not(x *Tensor) (*Tensor, error) {
	d, err := x.Bools()
	if err != nil {
		return nil, fmt.Errorf("tensor: not: %w", err)
	}

	out := make([]bool, len(d))
	for i, v := range d {
		out[i] = !v
	}

	return NewBool(out, x.shape)
}

// Relu applies max(0, x) element-wise to a float32 tensor.
func Relu(x *Tensor) (*Tensor, error) {
	d, err := x.Float32s()
	if err != nil {
		return nil, fmt.Errorf("tensor: relu: %w", err)
	}

	out := make([]float32, len(d))
	for i, v := range d {
		if v > 0 {
			out[i] = v
		}
	}

	return NewFloat32(out, x.shape)
}

// Softmax applies softmax along dim of a float32 tensor.
func Softmax(x *Tensor, dim int) (*Tensor, error) {
	data, err := x.Float32s()
	if err != nil {
		return nil, fmt.Errorf("tensor: softmax: %w", err)
	}

	if len(x.shape) == 0 {
		return nil, errors.New("tensor: softmax requires rank >= 1")
	}

	dim, err = normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: softmax: %w", err)
	}

	axis := x.shape[dim]
	if axis <= 0 {
		return nil, fmt.Errorf("tensor: softmax axis dimension must be > 0, got %d", axis)
	}

	inner := int64(1)
	for i := dim + 1; i < len(x.shape); i++ {
		inner *= x.shape[i]
	}

	outer := int64(1)
	for i := range dim {
		outer *= x.shape[i]
	}

	out := append([]float32(nil), data...)

	for o := range outer {
		for in := range inner {
			base := o*axis*inner + in
			maxV := float32(math.Inf(-1))

			for k := range axis {
				v := out[base+k*inner]
				if v > maxV {
					maxV = v
				}
			}

			var sum float64

			for k := range axis {
				i := base + k*inner
				e := math.Exp(float64(out[i] - maxV))
				out[i] = float32(e)
				sum += e
			}

			if sum == 0 {
				return nil, errors.New("tensor: softmax encountered zero normalization sum")
			}

			inv := float32(1.0 / sum)

			for k := range axis {
				i := base + k*inner
				out[i] *= inv
			}
		}
	}

	return NewFloat32(out, x.shape)
}

// Cast converts a tensor to the target dtype. Bool casts use 0/1 semantics.
func Cast(x *Tensor, to DType) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: cast on nil tensor")
	}

	if x.dtype == to {
		return x.Clone(), nil
	}

	switch {
	case x.dtype == Float32 && to == Int64:
		src, _ := x.Float32s()
		out := make([]int64, len(src))
		for i, v := range src {
			out[i] = int64(v)
		}

		return NewInt64(out, x.shape)
	case x.dtype == Int64 && to == Float32:
		src, _ := x.Int64s()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}

		return NewFloat32(out, x.shape)
	case x.dtype == Bool && to == Float32:
		src, _ := x.Bools()
		out := make([]float32, len(src))
		for i, v := range src {
			if v {
				out[i] = 1
			}
		}

		return NewFloat32(out, x.shape)
	case x.dtype == Bool && to == Int64:
		src, _ := x.Bools()
		out := make([]int64, len(src))
		for i, v := range src {
			if v {
				out[i] = 1
			}
		}

		return NewInt64(out, x.shape)
	case to == Bool:
		return nil, fmt.Errorf("tensor: cast %s to bool is not supported", x.dtype)
	default:
		return nil, fmt.Errorf("tensor: cast %s to %s is not supported", x.dtype, to)
	}
}

// MatMul performs batched float32 matrix multiplication with broadcasting
// over batch dimensions.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: matmul requires non-nil inputs")
	}

	aData, err := a.Float32s()
	if err != nil {
		return nil, fmt.Errorf("tensor: matmul: %w", err)
	}

	bData, err := b.Float32s()
	if err != nil {
		return nil, fmt.Errorf("tensor: matmul: %w", err)
	}

	if a.Rank() < 2 || b.Rank() < 2 {
		return nil, fmt.Errorf("tensor: matmul requires rank >= 2, got %d and %d", a.Rank(), b.Rank())
	}

	aShape := a.shape
	bShape := b.shape
	aRank := len(aShape)
	bRank := len(bShape)

	m := aShape[aRank-2]
	k := aShape[aRank-1]
	k2 := bShape[bRank-2]

	n := bShape[bRank-1]
	if k != k2 {
		return nil, fmt.Errorf("tensor: matmul mismatch: A shape %v and B shape %v (K dims %d vs %d)", aShape, bShape, k, k2)
	}

	batchShape, err := broadcastShape(aShape[:aRank-2], bShape[:bRank-2])
	if err != nil {
		return nil, fmt.Errorf("tensor: matmul batch broadcast: %w", err)
	}

	outShape := make([]int64, 0, len(batchShape)+2)
	outShape = append(outShape, batchShape...)
	outShape = append(outShape, m, n)

	total, err := elemCount(outShape)
	if err != nil {
		return nil, err
	}

	outData := make([]float32, total)
	aStrides := computeStrides(aShape)
	bStrides := computeStrides(bShape)
	outStrides := computeStrides(outShape)

	batchCount, err := elemCount(batchShape)
	if err != nil {
		return nil, err
	}

	batchCoords := make([]int64, len(batchShape))
	batchStrides := computeStrides(batchShape)

	for batchIdx := range batchCount {
		linearToCoord(int64(batchIdx), batchShape, batchStrides, batchCoords)
		aBatchOffset := broadcastBatchOffset(batchCoords, aShape[:aRank-2], aStrides[:aRank-2])
		bBatchOffset := broadcastBatchOffset(batchCoords, bShape[:bRank-2], bStrides[:bRank-2])
		outBatchOffset := coordToLinear(batchCoords, outStrides[:len(batchShape)])

		for i := range m {
			for j := range n {
				var sum float32

				for kk := range k {
					aIdx := aBatchOffset + i*aStrides[aRank-2] + kk*aStrides[aRank-1]
					bIdx := bBatchOffset + kk*bStrides[bRank-2] + j*bStrides[bRank-1]
					sum += aData[aIdx] * bData[bIdx]
				}

				outIdx := outBatchOffset + i*outStrides[len(outShape)-2] + j*outStrides[len(outShape)-1]
				outData[outIdx] = sum
			}
		}
	}

	return NewFloat32(outData, outShape)
}

func broadcastArith(a, b *Tensor, opName string, f32 func(x, y float32) (float32, error), i64 func(x, y int64) (int64, error)) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("tensor: broadcast %s requires non-nil inputs", opName)
	}

	if a.dtype != b.dtype {
		return nil, fmt.Errorf("tensor: broadcast %s dtype mismatch: %s vs %s", opName, a.dtype, b.dtype)
	}

	switch a.dtype {
	case Float32:
		aData, _ := a.Float32s()
		bData, _ := b.Float32s()

		out, outShape, err := broadcastApply(aData, a.shape, bData, b.shape, opName, f32)
		if err != nil {
			return nil, err
		}

		return NewFloat32(out, outShape)
	case Int64:
		aData, _ := a.Int64s()
		bData, _ := b.Int64s()

		out, outShape, err := broadcastApply(aData, a.shape, bData, b.shape, opName, i64)
		if err != nil {
			return nil, err
		}

		return NewInt64(out, outShape)
	default:
		return nil, fmt.Errorf("tensor: broadcast %s does not support dtype %s", opName, a.dtype)
	}
}

func broadcastCompare(a, b *Tensor, opName string, f32 func(x, y float32) bool, i64 func(x, y int64) bool) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("tensor: broadcast %s requires non-nil inputs", opName)
	}

	if a.dtype != b.dtype {
		return nil, fmt.Errorf("tensor: broadcast %s dtype mismatch: %s vs %s", opName, a.dtype, b.dtype)
	}

	switch a.dtype {
	case Float32:
		aData, _ := a.Float32s()
		bData, _ := b.Float32s()

		out, outShape, err := broadcastApply(aData, a.shape, bData, b.shape, opName,
			func(x, y float32) (bool, error) { return f32(x, y), nil })
		if err != nil {
			return nil, err
		}

		return NewBool(out, outShape)
	case Int64:
		aData, _ := a.Int64s()
		bData, _ := b.Int64s()

		out, outShape, err := broadcastApply(aData, a.shape, bData, b.shape, opName,
			func(x, y int64) (bool, error) { return i64(x, y), nil })
		if err != nil {
			return nil, err
		}

		return NewBool(out, outShape)
	default:
		return nil, fmt.Errorf("tensor: broadcast %s does not support dtype %s", opName, a.dtype)
	}
}

func broadcastApply[T, R any](aData []T, aShape []int64, bData []T, bShape []int64, opName string, fn func(x, y T) (R, error)) ([]R, []int64, error) {
	outShape, err := broadcastShape(aShape, bShape)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor: broadcast %s: %w", opName, err)
	}

	total, err := elemCount(outShape)
	if err != nil {
		return nil, nil, err
	}

	out := make([]R, total)
	aPadShape := leftPadShape(aShape, len(outShape))
	bPadShape := leftPadShape(bShape, len(outShape))
	aPadStrides := computeStrides(aPadShape)
	bPadStrides := computeStrides(bPadShape)
	outStrides := computeStrides(outShape)
	coord := make([]int64, len(outShape))

	for i := range out {
		linearToCoord(int64(i), outShape, outStrides, coord)

		aOff := int64(0)
		bOff := int64(0)

		for d := range coord {
			ac := coord[d]
			if aPadShape[d] == 1 {
				ac = 0
			}

			bc := coord[d]
			if bPadShape[d] == 1 {
				bc = 0
			}

			aOff += ac * aPadStrides[d]
			bOff += bc * bPadStrides[d]
		}

		out[i], err = fn(aData[aOff], bData[bOff])
		if err != nil {
			return nil, nil, fmt.Errorf("tensor: broadcast %s: %w", opName, err)
		}
	}

	return out, outShape, nil
}

func broadcastShape(a, b []int64) ([]int64, error) {
	outRank := max(len(a), len(b))

	out := make([]int64, outRank)
	for i := range outRank {
		ad := int64(1)
		if j := i - (outRank - len(a)); j >= 0 {
			ad = a[j]
		}

		bd := int64(1)
		if j := i - (outRank - len(b)); j >= 0 {
			bd = b[j]
		}

		switch {
		case ad == bd || ad == 1:
			out[i] = bd
		case bd == 1:
			out[i] = ad
		default:
			return nil, fmt.Errorf("cannot broadcast shapes %v and %v", a, b)
		}
	}

	return out, nil
}

func leftPadShape(shape []int64, rank int) []int64 {
	if len(shape) == rank {
		return append([]int64(nil), shape...)
	}

	out := make([]int64, rank)

	pad := rank - len(shape)
	for i := range pad {
		out[i] = 1
	}

	copy(out[pad:], shape)

	return out
}

func broadcastBatchOffset(batchCoords, srcBatchShape, srcBatchStrides []int64) int64 {
	if len(srcBatchShape) == 0 {
		return 0
	}

	outRank := len(batchCoords)
	srcRank := len(srcBatchShape)
	pad := outRank - srcRank
	var off int64

	for i := range srcRank {
		coord := batchCoords[pad+i]
		if srcBatchShape[i] == 1 {
			coord = 0
		}

		off += coord * srcBatchStrides[i]
	}

	return off
}

func normalizeDim(dim, rank int) (int, error) {
	if rank < 0 {
		return 0, fmt.Errorf("invalid rank %d", rank)
	}

	if dim < 0 {
		dim += rank
	}

	if dim < 0 || dim >= rank {
		return 0, fmt.Errorf("dim %d out of range for rank %d", dim, rank)
	}

	return dim, nil
}

func computeStrides(shape []int64) []int64 {
	if len(shape) == 0 {
		return nil
	}

	strides := make([]int64, len(shape))

	stride := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}

	return strides
}

func linearToCoord(linear int64, shape, strides, out []int64) {
	if len(shape) == 0 {
		return
	}

	for i := range shape {
		if shape[i] == 0 {
			out[i] = 0
			continue
		}

		out[i] = (linear / strides[i]) % shape[i]
	}
}

func coordToLinear(coord, strides []int64) int64 {
	var off int64
	for i, c := range coord {
		off += c * strides[i]
	}

	return off
}
