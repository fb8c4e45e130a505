// Package cpu implements the general-purpose reference backend: a
// topologically ordered interpreter over the kernel registry, with If and
// Loop executed through scope-chained value frames and fused regions
// delegated to the plans of the backends that claimed them.
package cpu

import (
	"context"
	"fmt"

	"github.com/example/go-graphsplit/internal/backend"
	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

// Name is the backend's registry name.
const Name = "cpu"

func init() {
	backend.Register(Name, func(cfg backend.Config) (backend.Backend, error) {
		b := New()
		if cfg.Capability != nil {
			b.capability = *cfg.Capability
		}

		return b, nil
	})
}

// Backend executes graphs on the host CPU.
type Backend struct {
	capability backend.Capability
	fused      map[string]backend.Plan
}

// Option configures a Backend.
type Option func(*Backend)

// WithFusedPlans installs the region-id to compiled-plan mapping consulted
// when a graph contains fused region nodes. The backend does not take
// ownership; closing the delegate plans stays with the caller.
func WithFusedPlans(plans map[string]backend.Plan) Option {
	return func(b *Backend) {
		b.fused = plans
	}
}

// New creates a CPU backend.
func New(opts ...Option) *Backend {
	b := &Backend{capability: builtinCapability()}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Capability() backend.Capability { return b.capability }

func builtinCapability() backend.Capability {
	ops := make([]string, 0, len(kernels)+2)
	for op := range kernels {
		ops = append(ops, op)
	}

	ops = append(ops, opIf, opLoop)

	return backend.NewCapability(ops, []tensor.DType{tensor.Float32, tensor.Int64, tensor.Bool})
}

// Compile binds one executable step per node of the resolved graph, in
// topological order, recursing into control-flow subgraphs.
func (b *Backend) Compile(_ context.Context, g *graph.Graph) (backend.Plan, error) {
	if !g.InputsSet() {
		return nil, fmt.Errorf("cpu: graph %q must be resolved before compiling", g.Name())
	}

	return b.compileGraph(g)
}

func (b *Backend) compileGraph(g *graph.Graph) (*plan, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, fmt.Errorf("cpu: compiling %q: %w", g.Name(), err)
	}

	p := &plan{g: g}

	for _, idx := range order {
		node := g.Node(idx)
		if node == nil {
			continue
		}

		s, err := b.compileNode(node)
		if err != nil {
			return nil, err
		}

		p.steps = append(p.steps, s)
	}

	return p, nil
}

func (b *Backend) compileNode(node *graph.Node) (step, error) {
	switch node.OpType() {
	case opIf:
		return b.compileIf(node)
	case opLoop:
		return b.compileLoop(node)
	case opFused:
		return b.compileFused(node)
	}

	k, ok := kernels[node.OpType()]
	if !ok {
		return nil, fmt.Errorf("cpu: no kernel for op %q (node %q)", node.OpType(), node.Name())
	}

	return &kernelStep{node: node, kernel: k}, nil
}
