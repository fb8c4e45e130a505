package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/example/go-graphsplit/internal/backend"
	"github.com/example/go-graphsplit/internal/backend/cpu"
	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/partition"
	"github.com/example/go-graphsplit/internal/tensor"
)

// fakeAccel claims the configured ops and compiles them with a private CPU
// interpreter, standing in for a real delegate runtime.
type fakeAccel struct {
	name     string
	cap      backend.Capability
	fail     bool
	compiled atomic.Int32
}

func newFakeAccel(name string, ops ...string) *fakeAccel {
	return &fakeAccel{
		name: name,
		cap:  backend.NewCapability(ops, nil),
	}
}

func (f *fakeAccel) Name() string { return f.name }

func (f *fakeAccel) Capability() backend.Capability { return f.cap }

func (f *fakeAccel) Compile(ctx context.Context, g *graph.Graph) (backend.Plan, error) {
	if f.fail {
		return nil, errors.New("accelerator offline")
	}

	f.compiled.Add(1)

	return cpu.New().Compile(ctx, g)
}

func mustF32(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	ten, err := tensor.NewFloat32(data, shape)
	if err != nil {
		t.Fatalf("NewFloat32: %v", err)
	}

	return ten
}

func wantF32(t *testing.T, got *tensor.Tensor, want []float32) {
	t.Helper()

	vals, err := got.Float32s()
	if err != nil {
		t.Fatalf("Float32s: %v", err)
	}

	if len(vals) != len(want) {
		t.Fatalf("got %v; want %v", vals, want)
	}

	for i := range vals {
		if vals[i] != want[i] {
			t.Fatalf("got %v; want %v", vals, want)
		}
	}
}

// buildArithModel is c = a + b; e = c * d; y = relu(e).
func buildArithModel(t *testing.T) *graph.Graph {
	t.Helper()

	g := graph.New("main")
	g.NewNode("add", "Add").In("a", "b").Out("c").MustAdd()
	g.NewNode("mul", "Mul").In("c", "d").Out("e").MustAdd()
	g.NewNode("act", "Relu").In("e").Out("y").MustAdd()
	g.SetInputs([]*graph.Value{
		g.ValueRef("a", nil),
		g.ValueRef("b", nil),
		g.ValueRef("d", nil),
	})
	g.SetOutputs([]*graph.Value{g.ValueRef("y", nil)})

	return g
}

func arithInputs(t *testing.T) map[string]*tensor.Tensor {
	t.Helper()

	return map[string]*tensor.Tensor{
		"a": mustF32(t, []float32{1, -2}, []int64{2}),
		"b": mustF32(t, []float32{3, -4}, []int64{2}),
		"d": mustF32(t, []float32{2, 2}, []int64{2}),
	}
}

func TestPrepareWithoutAccelerators(t *testing.T) {
	e := New(nil)

	prepared, err := e.Prepare(context.Background(), buildArithModel(t))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer prepared.Close()

	if len(prepared.Report().Regions) != 0 {
		t.Fatalf("regions = %v; want none", prepared.Report().Regions)
	}

	out, err := prepared.Run(context.Background(), arithInputs(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// (1+3)*2=8, relu((-2-4)*2)=0.
	wantF32(t, out["y"], []float32{8, 0})
}

func TestPrepareFusesClaimedRegion(t *testing.T) {
	accel := newFakeAccel("fake", "Add", "Mul")
	e := New([]backend.Backend{accel})

	g := buildArithModel(t)

	prepared, err := e.Prepare(context.Background(), g)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer prepared.Close()

	report := prepared.Report()
	if report.Accepted() != 1 {
		t.Fatalf("accepted = %d; want 1 (report %+v)", report.Accepted(), report)
	}

	region := report.Regions[0]
	if region.Backend != "fake" || len(region.Nodes) != 2 {
		t.Fatalf("region = %+v; want backend fake with nodes [add mul]", region)
	}

	if accel.compiled.Load() != 1 {
		t.Fatalf("accelerator compiled %d graphs; want 1", accel.compiled.Load())
	}

	// The Add and Mul slots are gone; a fused node stands in.
	fusedSeen := false

	for _, n := range g.Nodes() {
		switch n.OpType() {
		case "Add", "Mul":
			t.Fatalf("node %q survived fusion", n.Name())
		case partition.FusedOp:
			fusedSeen = true
			if n.Domain() != "fake" {
				t.Fatalf("fused node domain = %q; want fake", n.Domain())
			}
		}
	}

	if !fusedSeen {
		t.Fatal("no fused node in partitioned graph")
	}

	out, err := prepared.Run(context.Background(), arithInputs(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantF32(t, out["y"], []float32{8, 0})
}

func TestPrepareDeclinesFailedCompile(t *testing.T) {
	accel := newFakeAccel("fake", "Add", "Mul")
	accel.fail = true
	e := New([]backend.Backend{accel})

	g := buildArithModel(t)

	prepared, err := e.Prepare(context.Background(), g)
	if err != nil {
		t.Fatalf("Prepare should decline, not abort: %v", err)
	}
	defer prepared.Close()

	report := prepared.Report()
	if report.Accepted() != 0 || len(report.Regions) != 1 {
		t.Fatalf("report = %+v; want one rejected region", report)
	}

	if report.Regions[0].Reason == "" {
		t.Fatal("rejected region carries no reason")
	}

	// Everything falls back to the CPU backend.
	out, err := prepared.Run(context.Background(), arithInputs(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantF32(t, out["y"], []float32{8, 0})
}

func TestPrepareSplitsAroundUnsupportedNode(t *testing.T) {
	accel := newFakeAccel("fake", "Add")
	e := New([]backend.Backend{accel})

	// add1 -> relu (unsupported) -> add2: the two Adds cannot share a region.
	g := graph.New("main")
	g.NewNode("add1", "Add").In("a", "b").Out("c").MustAdd()
	g.NewNode("act", "Relu").In("c").Out("r").MustAdd()
	g.NewNode("add2", "Add").In("r", "a").Out("y").MustAdd()
	g.SetInputs([]*graph.Value{g.ValueRef("a", nil), g.ValueRef("b", nil)})
	g.SetOutputs([]*graph.Value{g.ValueRef("y", nil)})

	prepared, err := e.Prepare(context.Background(), g)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer prepared.Close()

	if got := prepared.Report().Accepted(); got != 2 {
		t.Fatalf("accepted = %d; want 2 separate regions", got)
	}

	out, err := prepared.Run(context.Background(), map[string]*tensor.Tensor{
		"a": mustF32(t, []float32{1, -5}, []int64{2}),
		"b": mustF32(t, []float32{2, 3}, []int64{2}),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// y = relu(a+b) + a.
	wantF32(t, out["y"], []float32{4, -5})
}

func TestPrepareHoistsClosureValueIntoRegion(t *testing.T) {
	accel := newFakeAccel("fake", "If")
	e := New([]backend.Backend{accel})

	// base is produced outside the region; the If branches read it by
	// closure, so the carved region must hoist it to a declared input.
	g := graph.New("main")
	g.NewNode("prep", "Add").In("x", "x").Out("base").MustAdd()

	then := graph.New("then")
	then.NewNode("t0", "Relu").In("base").Out("tout").MustAdd()
	then.SetOutputs([]*graph.Value{then.ValueRef("tout", nil)})

	els := graph.New("else")
	els.NewNode("e0", "Identity").In("base").Out("eout").MustAdd()
	els.SetOutputs([]*graph.Value{els.ValueRef("eout", nil)})

	g.NewNode("pick", "If").
		In("cond").
		Out("y").
		AttrGraph("then_branch", then).
		AttrGraph("else_branch", els).
		MustAdd()

	g.SetInputs([]*graph.Value{g.ValueRef("x", nil), g.ValueRef("cond", nil)})
	g.SetOutputs([]*graph.Value{g.ValueRef("y", nil)})

	prepared, err := e.Prepare(context.Background(), g)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer prepared.Close()

	report := prepared.Report()
	if report.Accepted() != 1 {
		t.Fatalf("accepted = %d; want 1 (report %+v)", report.Accepted(), report)
	}

	hoisted := report.Regions[0].HoistedInputs
	if len(hoisted) != 1 || hoisted[0] != "base" {
		t.Fatalf("hoisted inputs = %v; want [base]", hoisted)
	}

	out, err := prepared.Run(context.Background(), map[string]*tensor.Tensor{
		"x":    mustF32(t, []float32{-1, 2}, []int64{2}),
		"cond": tensor.ScalarBool(true),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// then branch: relu(x+x).
	wantF32(t, out["y"], []float32{0, 4})
}

func TestPreparedCloseIsIdempotent(t *testing.T) {
	e := New(nil)

	prepared, err := e.Prepare(context.Background(), buildArithModel(t))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	prepared.Close()
	prepared.Close()
}
