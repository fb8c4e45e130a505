// Package engine orchestrates the partitioning pass: it offers regions of a
// resolved graph to accelerator backends in priority order, fuses the regions
// they accept, and compiles whatever remains on the CPU backend.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/go-graphsplit/internal/backend"
	"github.com/example/go-graphsplit/internal/backend/cpu"
	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/partition"
	"github.com/example/go-graphsplit/internal/tensor"
)

// Engine prepares graphs for execution across a fixed set of accelerator
// backends. The CPU backend is implicit and always runs last.
type Engine struct {
	accelerators []backend.Backend
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine delegating to the given accelerator backends, tried
// in order.
func New(accelerators []backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		accelerators: accelerators,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegionReport records the outcome of offering one region to a backend.
type RegionReport struct {
	Backend       string
	ID            string
	Nodes         []string
	HoistedInputs []string
	Diagnostics   []string
	Accepted      bool
	Reason        string
}

// Report summarizes one partitioning pass.
type Report struct {
	Regions []RegionReport
}

// Accepted returns the number of fused regions.
func (r Report) Accepted() int {
	n := 0

	for _, reg := range r.Regions {
		if reg.Accepted {
			n++
		}
	}

	return n
}

// Prepared is an executable partitioned model. Close releases the compiled
// plans of every backend involved.
type Prepared struct {
	graph  *graph.Graph
	plan   backend.Plan
	fused  map[string]backend.Plan
	report Report
}

// Graph returns the partitioned graph with fused region nodes in place.
func (p *Prepared) Graph() *graph.Graph { return p.graph }

// Report returns the partitioning outcome.
func (p *Prepared) Report() Report { return p.report }

// Run executes the model. Inputs map to the graph's declared
// non-initializer inputs.
func (p *Prepared) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return p.plan.Run(ctx, inputs)
}

// Close releases the host plan and every delegate region plan. Safe to call
// multiple times.
func (p *Prepared) Close() {
	if p.plan != nil {
		p.plan.Close()
		p.plan = nil
	}

	for id, delegate := range p.fused {
		delegate.Close()
		delete(p.fused, id)
	}
}

// candidate is one carved region moving through the pass.
type candidate struct {
	region  partition.Region
	carved  *partition.Carved
	report  RegionReport
	plan    backend.Plan
	skipped bool
}

// Prepare resolves g, runs the partitioning pass for each accelerator in
// order, and compiles the remaining graph on the CPU backend. The pass never
// fails because a backend declines a region; a region whose preparation or
// compilation fails is simply left to later backends or the CPU.
func (e *Engine) Prepare(ctx context.Context, g *graph.Graph) (*Prepared, error) {
	if err := g.Resolve(); err != nil {
		return nil, fmt.Errorf("engine: resolving model graph: %w", err)
	}

	fusedPlans := map[string]backend.Plan{}

	var report Report

	for _, accel := range e.accelerators {
		if err := e.runPass(ctx, g, accel, fusedPlans, &report); err != nil {
			closeAll(fusedPlans)
			return nil, err
		}
	}

	host := cpu.New(cpu.WithFusedPlans(fusedPlans))

	plan, err := host.Compile(ctx, g)
	if err != nil {
		closeAll(fusedPlans)
		return nil, fmt.Errorf("engine: compiling host graph: %w", err)
	}

	return &Prepared{
		graph:  g,
		plan:   plan,
		fused:  fusedPlans,
		report: report,
	}, nil
}

// runPass offers g's supported regions to one accelerator and fuses the
// accepted ones. Graph mutation stays on this goroutine; only compilation of
// the finalized, exclusively owned rebuilt graphs fans out.
func (e *Engine) runPass(
	ctx context.Context,
	g *graph.Graph,
	accel backend.Backend,
	fusedPlans map[string]backend.Plan,
	report *Report,
) error {
	supported := accel.Capability().SupportedNodes(g)

	regions, err := partition.FormRegions(g, supported)
	if err != nil {
		return fmt.Errorf("engine: backend %q: %w", accel.Name(), err)
	}

	candidates := make([]*candidate, 0, len(regions))

	for _, region := range regions {
		c := e.carveCandidate(g, accel.Name(), region)
		candidates = append(candidates, c)
	}

	eg, gctx := errgroup.WithContext(ctx)

	for _, c := range candidates {
		if c.skipped {
			continue
		}

		eg.Go(func() error {
			plan, err := accel.Compile(gctx, c.carved.Graph)
			if err != nil {
				c.report.Reason = fmt.Sprintf("compile failed: %v", err)
				return nil
			}

			c.plan = plan

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("engine: backend %q: %w", accel.Name(), err)
	}

	for _, c := range candidates {
		if c.plan == nil {
			e.logger.Warn("region rejected",
				"backend", accel.Name(),
				"region", c.report.ID,
				"reason", c.report.Reason)
			report.Regions = append(report.Regions, c.report)

			continue
		}

		if _, err := partition.Fuse(g, c.region, c.carved, accel.Name(), c.report.ID); err != nil {
			c.plan.Close()
			c.report.Reason = fmt.Sprintf("fuse failed: %v", err)
			e.logger.Warn("region rejected",
				"backend", accel.Name(),
				"region", c.report.ID,
				"reason", c.report.Reason)
			report.Regions = append(report.Regions, c.report)

			continue
		}

		fusedPlans[c.report.ID] = c.plan
		c.report.Accepted = true
		e.logger.Info("region fused",
			"backend", accel.Name(),
			"region", c.report.ID,
			"nodes", len(c.report.Nodes),
			"hoisted", len(c.report.HoistedInputs))
		report.Regions = append(report.Regions, c.report)
	}

	if err := g.Resolve(); err != nil {
		return fmt.Errorf("engine: graph invalid after fusing %q regions: %w", accel.Name(), err)
	}

	return nil
}

// carveCandidate carves one region, restores its closure visibility and
// finalizes its inputs. A candidate that cannot be made self-contained is
// marked skipped with the reason recorded.
func (e *Engine) carveCandidate(g *graph.Graph, backendName string, region partition.Region) *candidate {
	c := &candidate{
		region: region,
		report: RegionReport{
			Backend: backendName,
			ID:      uuid.NewString(),
		},
	}

	for _, idx := range region.Indices {
		if n := g.Node(idx); n != nil {
			c.report.Nodes = append(c.report.Nodes, n.Name())
		}
	}

	reject := func(format string, args ...any) *candidate {
		c.skipped = true
		c.report.Reason = fmt.Sprintf(format, args...)

		return c
	}

	carved, err := partition.Carve(g, region)
	if err != nil {
		return reject("carve failed: %v", err)
	}

	c.carved = carved

	registry := partition.NewRegistry()
	registry.BuildContexts(carved.Graph)

	diags := registry.RestoreOuterScope(carved.Graph, g, carved.Corr)
	c.report.Diagnostics = diags

	if len(diags) > 0 {
		return reject("outer-scope restoration incomplete (%d diagnostics)", len(diags))
	}

	registry.FinalizeInputs(carved.Graph)

	if regCtx := registry.Context(carved.Graph); regCtx != nil {
		for _, v := range regCtx.ManuallyAddedInputs() {
			c.report.HoistedInputs = append(c.report.HoistedInputs, v.Name())
		}
	}

	if err := carved.Graph.Resolve(); err != nil {
		return reject("rebuilt graph does not resolve: %v", err)
	}

	return c
}

func closeAll(plans map[string]backend.Plan) {
	for id, p := range plans {
		p.Close()
		delete(plans, id)
	}
}
