package cpu

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

// kernel computes a node's outputs from its input tensors. Kernels must not
// mutate their inputs; tensors are shared across frames.
type kernel func(node *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error)

var kernels = map[string]kernel{
	"Add":       binary(tensor.Add),
	"Sub":       binary(tensor.Sub),
	"Mul":       binary(tensor.Mul),
	"Div":       binary(tensor.Div),
	"MatMul":    binary(tensor.MatMul),
	"Greater":   binary(tensor.Greater),
	"Less":      binary(tensor.Less),
	"Relu":      unary(tensor.Relu),
	"Not":       unary(tensor.Not),
	"Identity":  kernelIdentity,
	"Softmax":   kernelSoftmax,
	"Cast":      kernelCast,
	"Squeeze":   kernelSqueeze,
	"Unsqueeze": kernelUnsqueeze,
	"Constant":  kernelConstant,
}

func binary(f func(a, b *tensor.Tensor) (*tensor.Tensor, error)) kernel {
	return func(_ *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if len(in) != 2 {
			return nil, fmt.Errorf("want 2 inputs, got %d", len(in))
		}

		out, err := f(in[0], in[1])
		if err != nil {
			return nil, err
		}

		return []*tensor.Tensor{out}, nil
	}
}

func unary(f func(x *tensor.Tensor) (*tensor.Tensor, error)) kernel {
	return func(_ *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
		if len(in) != 1 {
			return nil, fmt.Errorf("want 1 input, got %d", len(in))
		}

		out, err := f(in[0])
		if err != nil {
			return nil, err
		}

		return []*tensor.Tensor{out}, nil
	}
}

func kernelIdentity(_ *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("want 1 input, got %d", len(in))
	}

	return []*tensor.Tensor{in[0]}, nil
}

func kernelSoftmax(node *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("want 1 input, got %d", len(in))
	}

	axis := node.AttrInt("axis", -1)

	out, err := tensor.Softmax(in[0], int(axis))
	if err != nil {
		return nil, err
	}

	return []*tensor.Tensor{out}, nil
}

func kernelCast(node *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("want 1 input, got %d", len(in))
	}

	raw := node.AttrString("to", "")
	if raw == "" {
		return nil, errors.New(`missing "to" attribute`)
	}

	to, err := tensor.ParseDType(raw)
	if err != nil {
		return nil, err
	}

	out, err := tensor.Cast(in[0], to)
	if err != nil {
		return nil, err
	}

	return []*tensor.Tensor{out}, nil
}

func kernelSqueeze(node *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("want 1 input, got %d", len(in))
	}

	shape := in[0].Shape()
	axes := node.AttrInts("axes")

	drop := map[int]struct{}{}

	if len(axes) == 0 {
		for i, d := range shape {
			if d == 1 {
				drop[i] = struct{}{}
			}
		}
	} else {
		for _, a := range axes {
			i, err := normalizeAxis(a, len(shape))
			if err != nil {
				return nil, err
			}

			if shape[i] != 1 {
				return nil, fmt.Errorf("cannot squeeze axis %d of shape %v", a, shape)
			}

			drop[i] = struct{}{}
		}
	}

	out := make([]int64, 0, len(shape))

	for i, d := range shape {
		if _, ok := drop[i]; ok {
			continue
		}

		out = append(out, d)
	}

	reshaped, err := in[0].Reshape(out)
	if err != nil {
		return nil, err
	}

	return []*tensor.Tensor{reshaped}, nil
}

func kernelUnsqueeze(node *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("want 1 input, got %d", len(in))
	}

	axes := node.AttrInts("axes")
	if len(axes) == 0 {
		return nil, errors.New(`missing "axes" attribute`)
	}

	shape := in[0].Shape()
	outRank := len(shape) + len(axes)
	resolved := make([]int, 0, len(axes))

	for _, a := range axes {
		i, err := normalizeAxis(a, outRank)
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, i)
	}

	sort.Ints(resolved)

	for i := 1; i < len(resolved); i++ {
		if resolved[i] == resolved[i-1] {
			return nil, fmt.Errorf("duplicate axis %d", resolved[i])
		}
	}

	out := make([]int64, 0, outRank)
	src := 0

	for i := 0; i < outRank; i++ {
		if len(resolved) > 0 && resolved[0] == i {
			out = append(out, 1)
			resolved = resolved[1:]

			continue
		}

		out = append(out, shape[src])
		src++
	}

	reshaped, err := in[0].Reshape(out)
	if err != nil {
		return nil, err
	}

	return []*tensor.Tensor{reshaped}, nil
}

func kernelConstant(node *graph.Node, in []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(in) != 0 {
		return nil, fmt.Errorf("want 0 inputs, got %d", len(in))
	}

	value := node.AttrTensor("value")
	if value == nil {
		return nil, errors.New(`missing "value" attribute`)
	}

	return []*tensor.Tensor{value}, nil
}

func normalizeAxis(axis int64, rank int) (int, error) {
	if axis < 0 {
		axis += int64(rank)
	}

	if axis < 0 || axis >= int64(rank) {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}

	return int(axis), nil
}
