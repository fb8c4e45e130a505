package partition

import (
	"github.com/example/go-graphsplit/internal/graph"
)

// FinalizeInputs installs the definitive declared-input list on g so the
// graph is structurally self-contained: first the free inputs discovered by
// the context builder, then the hoisted closure values, then any inputs the
// graph already declared, de-duplicated by name. When nothing was hoisted
// the pass defers to structural resolution, which infers declared inputs on
// its own, so re-running finalization is a no-op there and idempotent
// everywhere else.
func (r *Registry) FinalizeInputs(g *graph.Graph) {
	ctx := r.Context(g)
	if ctx == nil || len(ctx.manuallyAdded) == 0 {
		return
	}

	inputs := make([]*graph.Value, 0, len(ctx.inputOrder)+len(ctx.manuallyAdded)+len(g.Inputs()))
	seen := map[string]struct{}{}

	add := func(v *graph.Value) {
		if _, ok := seen[v.Name()]; ok {
			return
		}

		seen[v.Name()] = struct{}{}
		inputs = append(inputs, v)
	}

	for _, name := range ctx.inputOrder {
		add(ctx.inputsAndInitializers[name])
	}

	for _, v := range ctx.manuallyAdded {
		add(v)
	}

	for _, v := range g.Inputs() {
		add(v)
	}

	g.SetInputs(inputs)
}
