package cpu

import (
	"context"
	"fmt"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

// frame is one scope of named tensors during execution. Lookups walk parent
// frames, which is how outer-scope reads inside control-flow bodies resolve.
type frame struct {
	parent *frame
	vals   map[string]*tensor.Tensor
}

func newFrame(parent *frame) *frame {
	return &frame{parent: parent, vals: map[string]*tensor.Tensor{}}
}

func (f *frame) lookup(name string) (*tensor.Tensor, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if t, ok := cur.vals[name]; ok {
			return t, true
		}
	}

	return nil, false
}

func (f *frame) set(name string, t *tensor.Tensor) {
	f.vals[name] = t
}

type step interface {
	run(ctx context.Context, f *frame) error
}

// plan executes one graph's nodes in the order fixed at compile time.
type plan struct {
	g     *graph.Graph
	steps []step
}

func (p *plan) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	f := newFrame(nil)
	if err := p.bindInputs(f, inputs); err != nil {
		return nil, err
	}

	if err := p.runInFrame(ctx, f); err != nil {
		return nil, err
	}

	return p.collectOutputs(f)
}

func (p *plan) Close() {}

func (p *plan) bindInputs(f *frame, inputs map[string]*tensor.Tensor) error {
	for _, name := range p.g.InitializerNames() {
		t, _ := p.g.Initializer(name)
		f.set(name, t)
	}

	for _, in := range p.g.Inputs() {
		name := in.Name()
		if _, ok := f.vals[name]; ok {
			// Declared initializer; the constant already bound wins unless
			// the caller feeds an override.
			if t, fed := inputs[name]; fed {
				f.set(name, t)
			}

			continue
		}

		t, ok := inputs[name]
		if !ok {
			return fmt.Errorf("cpu: graph %q input %q was not fed", p.g.Name(), name)
		}

		f.set(name, t)
	}

	return nil
}

func (p *plan) runInFrame(ctx context.Context, f *frame) error {
	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cpu: graph %q: %w", p.g.Name(), err)
		}

		if err := s.run(ctx, f); err != nil {
			return err
		}
	}

	return nil
}

func (p *plan) collectOutputs(f *frame) (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(p.g.Outputs()))

	for _, v := range p.g.Outputs() {
		t, ok := f.lookup(v.Name())
		if !ok {
			return nil, fmt.Errorf("cpu: graph %q output %q was never computed", p.g.Name(), v.Name())
		}

		out[v.Name()] = t
	}

	return out, nil
}

// gatherInputs resolves a node's input tensors through the frame chain.
func gatherInputs(f *frame, node *graph.Node) ([]*tensor.Tensor, error) {
	in := make([]*tensor.Tensor, len(node.Inputs()))

	for i, v := range node.Inputs() {
		t, ok := f.lookup(v.Name())
		if !ok {
			return nil, fmt.Errorf("cpu: node %q input %q is not available", node.Name(), v.Name())
		}

		in[i] = t
	}

	return in, nil
}

func storeOutputs(f *frame, node *graph.Node, outputs []*tensor.Tensor) error {
	if len(outputs) != len(node.Outputs()) {
		return fmt.Errorf("cpu: node %q produced %d outputs, want %d", node.Name(), len(outputs), len(node.Outputs()))
	}

	for i, v := range node.Outputs() {
		f.set(v.Name(), outputs[i])
	}

	return nil
}

type kernelStep struct {
	node   *graph.Node
	kernel kernel
}

func (s *kernelStep) run(_ context.Context, f *frame) error {
	in, err := gatherInputs(f, s.node)
	if err != nil {
		return err
	}

	out, err := s.kernel(s.node, in)
	if err != nil {
		return fmt.Errorf("cpu: node %q (%s): %w", s.node.Name(), s.node.OpType(), err)
	}

	return storeOutputs(f, s.node, out)
}
