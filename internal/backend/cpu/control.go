package cpu

import (
	"context"
	"fmt"

	"github.com/example/go-graphsplit/internal/backend"
	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/partition"
	"github.com/example/go-graphsplit/internal/tensor"
)

const (
	opIf    = "If"
	opLoop  = "Loop"
	opFused = partition.FusedOp
)

// ifStep executes one of two branch plans on a scalar bool condition. Branch
// graphs declare no inputs; their closure reads resolve through the parent
// frame, and their outputs map positionally onto the node's outputs.
type ifStep struct {
	node      *graph.Node
	thenPlan  *plan
	elsePlan  *plan
	thenGraph *graph.Graph
	elseGraph *graph.Graph
}

func (b *Backend) compileIf(node *graph.Node) (step, error) {
	thenG := node.Subgraph("then_branch")
	elseG := node.Subgraph("else_branch")

	if thenG == nil || elseG == nil {
		return nil, fmt.Errorf("cpu: If node %q needs then_branch and else_branch", node.Name())
	}

	if len(node.Inputs()) != 1 {
		return nil, fmt.Errorf("cpu: If node %q wants 1 input, got %d", node.Name(), len(node.Inputs()))
	}

	thenPlan, err := b.compileGraph(thenG)
	if err != nil {
		return nil, err
	}

	elsePlan, err := b.compileGraph(elseG)
	if err != nil {
		return nil, err
	}

	return &ifStep{
		node:      node,
		thenPlan:  thenPlan,
		elsePlan:  elsePlan,
		thenGraph: thenG,
		elseGraph: elseG,
	}, nil
}

func (s *ifStep) run(ctx context.Context, f *frame) error {
	condT, ok := f.lookup(s.node.Inputs()[0].Name())
	if !ok {
		return fmt.Errorf("cpu: If node %q condition %q is not available", s.node.Name(), s.node.Inputs()[0].Name())
	}

	cond, err := condT.ScalarBoolValue()
	if err != nil {
		return fmt.Errorf("cpu: If node %q condition: %w", s.node.Name(), err)
	}

	branchPlan, branchGraph := s.thenPlan, s.thenGraph
	if !cond {
		branchPlan, branchGraph = s.elsePlan, s.elseGraph
	}

	outputs, err := runSubgraph(ctx, branchPlan, branchGraph, f, nil)
	if err != nil {
		return err
	}

	return storeOutputs(f, s.node, outputs)
}

// loopStep executes a body plan up to a trip count while a condition holds,
// threading loop-carried values. Node inputs are (tripCount, cond,
// carried...); body inputs are (iteration, cond, carried...) and body
// outputs are (cond, carried...).
type loopStep struct {
	node *graph.Node
	body *plan
	g    *graph.Graph
}

func (b *Backend) compileLoop(node *graph.Node) (step, error) {
	body := node.Subgraph("body")
	if body == nil {
		return nil, fmt.Errorf("cpu: Loop node %q needs a body", node.Name())
	}

	if len(node.Inputs()) < 2 {
		return nil, fmt.Errorf("cpu: Loop node %q wants at least 2 inputs, got %d", node.Name(), len(node.Inputs()))
	}

	carried := len(node.Inputs()) - 2
	if len(body.Inputs()) != carried+2 {
		return nil, fmt.Errorf("cpu: Loop node %q body declares %d inputs, want %d", node.Name(), len(body.Inputs()), carried+2)
	}

	if len(body.Outputs()) != carried+1 {
		return nil, fmt.Errorf("cpu: Loop node %q body declares %d outputs, want %d", node.Name(), len(body.Outputs()), carried+1)
	}

	if len(node.Outputs()) != carried {
		return nil, fmt.Errorf("cpu: Loop node %q wants %d outputs, got %d", node.Name(), carried, len(node.Outputs()))
	}

	bodyPlan, err := b.compileGraph(body)
	if err != nil {
		return nil, err
	}

	return &loopStep{node: node, body: bodyPlan, g: body}, nil
}

func (s *loopStep) run(ctx context.Context, f *frame) error {
	in, err := gatherInputs(f, s.node)
	if err != nil {
		return err
	}

	tripCount, err := in[0].ScalarInt64Value()
	if err != nil {
		return fmt.Errorf("cpu: Loop node %q trip count: %w", s.node.Name(), err)
	}

	cond, err := in[1].ScalarBoolValue()
	if err != nil {
		return fmt.Errorf("cpu: Loop node %q condition: %w", s.node.Name(), err)
	}

	carried := append([]*tensor.Tensor(nil), in[2:]...)
	bodyInputs := s.g.Inputs()

	for iter := int64(0); iter < tripCount && cond; iter++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cpu: Loop node %q: %w", s.node.Name(), err)
		}

		feed := map[string]*tensor.Tensor{
			bodyInputs[0].Name(): tensor.ScalarInt64(iter),
			bodyInputs[1].Name(): tensor.ScalarBool(cond),
		}
		for i, t := range carried {
			feed[bodyInputs[i+2].Name()] = t
		}

		outputs, err := runSubgraph(ctx, s.body, s.g, f, feed)
		if err != nil {
			return err
		}

		cond, err = outputs[0].ScalarBoolValue()
		if err != nil {
			return fmt.Errorf("cpu: Loop node %q body condition: %w", s.node.Name(), err)
		}

		copy(carried, outputs[1:])
	}

	return storeOutputs(f, s.node, carried)
}

// runSubgraph executes a nested plan in a child frame chained to parent, so
// outer-scope reads keep working, and returns the subgraph's outputs in
// declaration order.
func runSubgraph(ctx context.Context, p *plan, g *graph.Graph, parent *frame, feed map[string]*tensor.Tensor) ([]*tensor.Tensor, error) {
	f := newFrame(parent)

	for _, name := range g.InitializerNames() {
		t, _ := g.Initializer(name)
		f.set(name, t)
	}

	for name, t := range feed {
		f.set(name, t)
	}

	if err := p.runInFrame(ctx, f); err != nil {
		return nil, err
	}

	out := make([]*tensor.Tensor, len(g.Outputs()))

	for i, v := range g.Outputs() {
		t, ok := f.lookup(v.Name())
		if !ok {
			return nil, fmt.Errorf("cpu: subgraph %q output %q was never computed", g.Name(), v.Name())
		}

		out[i] = t
	}

	return out, nil
}

// fusedStep hands a claimed region's inputs to the delegate plan compiled by
// the backend that owns the region.
type fusedStep struct {
	node *graph.Node
	plan backend.Plan
}

func (b *Backend) compileFused(node *graph.Node) (step, error) {
	id := node.AttrString(partition.RegionAttr, "")
	if id == "" {
		return nil, fmt.Errorf("cpu: fused node %q carries no region id", node.Name())
	}

	delegate, ok := b.fused[id]
	if !ok {
		return nil, fmt.Errorf("cpu: no compiled plan for region %q (node %q)", id, node.Name())
	}

	return &fusedStep{node: node, plan: delegate}, nil
}

func (s *fusedStep) run(ctx context.Context, f *frame) error {
	inputs := make(map[string]*tensor.Tensor, len(s.node.Inputs()))

	for _, v := range s.node.Inputs() {
		t, ok := f.lookup(v.Name())
		if !ok {
			return fmt.Errorf("cpu: fused node %q input %q is not available", s.node.Name(), v.Name())
		}

		inputs[v.Name()] = t
	}

	outputs, err := s.plan.Run(ctx, inputs)
	if err != nil {
		return fmt.Errorf("cpu: fused node %q: %w", s.node.Name(), err)
	}

	for _, v := range s.node.Outputs() {
		t, ok := outputs[v.Name()]
		if !ok {
			return fmt.Errorf("cpu: fused node %q delegate did not produce %q", s.node.Name(), v.Name())
		}

		f.set(v.Name(), t)
	}

	return nil
}
