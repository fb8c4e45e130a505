package graph

import (
	"strings"
	"testing"

	"github.com/example/go-graphsplit/internal/tensor"
)

func TestHandleUniqueness(t *testing.T) {
	a := New("g")
	b := New("g")

	if a.Handle() == b.Handle() {
		t.Fatalf("two graphs share handle %d", a.Handle())
	}
}

func TestValueRef(t *testing.T) {
	g := New("g")

	v := g.ValueRef("x", nil)
	if v.Name() != "x" || v.Type() != nil {
		t.Fatalf("unexpected value %v", v)
	}

	same := g.ValueRef("x", &TypeInfo{DType: tensor.Float32, Shape: []int64{2}})
	if same != v {
		t.Fatal("ValueRef must return the registered value")
	}

	if v.Type() == nil || v.Type().DType != tensor.Float32 {
		t.Fatalf("ValueRef must fill a missing type, got %v", v.Type())
	}

	again := g.ValueRef("x", &TypeInfo{DType: tensor.Int64})
	if again.Type().DType != tensor.Float32 {
		t.Fatal("ValueRef must not overwrite an existing type")
	}

	if g.Value("missing") != nil {
		t.Fatal("Value must return nil for unregistered names")
	}
}

func TestBuilderBasics(t *testing.T) {
	g := New("g")

	n, err := g.NewNode("add1", "Add").In("a", "b").Out("c").AttrInt("axis", 1).Add()
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if n.OpType() != "Add" || n.Name() != "add1" {
		t.Fatalf("unexpected node %s/%s", n.Name(), n.OpType())
	}

	if len(n.Inputs()) != 2 || n.Inputs()[0].Name() != "a" || n.Inputs()[1].Name() != "b" {
		t.Fatalf("unexpected inputs %v", n.Inputs())
	}

	if got := n.AttrInt("axis", -1); got != 1 {
		t.Fatalf("AttrInt = %d, want 1", got)
	}

	if got := n.AttrInt("missing", -1); got != -1 {
		t.Fatalf("AttrInt default = %d, want -1", got)
	}

	if !g.HasValue("c") {
		t.Fatal("outputs must register in the value table")
	}
}

func TestBuilderErrors(t *testing.T) {
	g := New("g")

	if _, err := g.NewNode("", "Add").Out("c").Add(); err == nil {
		t.Fatal("expected error for empty node name")
	}

	if _, err := g.NewNode("n", "").Out("c").Add(); err == nil {
		t.Fatal("expected error for empty op type")
	}

	if _, err := g.NewNode("n", "Add").Add(); err == nil {
		t.Fatal("expected error for missing outputs")
	}

	if _, err := g.NewNode("n", "Add").Out("c").AttrInt("k", 1).AttrInt("k", 2).Add(); err == nil {
		t.Fatal("expected error for duplicate attribute")
	}

	g.NewNode("n", "Add").In("a").Out("c").MustAdd()

	if _, err := g.NewNode("n", "Mul").In("a").Out("d").Add(); err == nil || !strings.Contains(err.Error(), "duplicate node name") {
		t.Fatalf("expected duplicate node name error, got %v", err)
	}
}

func TestBuilderSubgraphAttach(t *testing.T) {
	g := New("top")
	child := New("then")
	child.NewNode("inner", "Identity").In("x").Out("y").MustAdd()

	n, err := g.NewNode("if1", "If").In("cond").Out("out").AttrGraph("then_branch", child).Add()
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if n.Subgraph("then_branch") != child {
		t.Fatal("subgraph not attached under its attribute name")
	}

	if child.ParentNode() != n || child.ParentGraph() != g {
		t.Fatal("child parent links not set")
	}

	if child.Depth() != 1 || child.Root() != g {
		t.Fatalf("unexpected depth %d", child.Depth())
	}

	other := New("other")
	if _, err := other.NewNode("if2", "If").In("c").Out("o").AttrGraph("then_branch", child).Add(); err == nil {
		t.Fatal("expected error attaching an owned subgraph twice")
	}
}

func TestRemoveNodeTombstones(t *testing.T) {
	g := New("g")
	g.NewNode("a", "Relu").In("x").Out("y").MustAdd()
	n := g.NewNode("b", "Relu").In("y").Out("z").MustAdd()
	g.NewNode("c", "Relu").In("z").Out("w").MustAdd()

	if err := g.RemoveNode(n.Index()); err != nil {
		t.Fatalf("RemoveNode error: %v", err)
	}

	if g.Node(n.Index()) != nil {
		t.Fatal("removed slot must read nil")
	}

	if g.MaxNodeIndex() != 3 {
		t.Fatalf("MaxNodeIndex = %d, want 3 (slots are kept)", g.MaxNodeIndex())
	}

	if g.NumNodes() != 2 || len(g.Nodes()) != 2 {
		t.Fatalf("NumNodes = %d, want 2", g.NumNodes())
	}

	if err := g.RemoveNode(n.Index()); err == nil {
		t.Fatal("expected error removing an empty slot")
	}

	if err := g.RemoveNode(99); err == nil {
		t.Fatal("expected error for out-of-range slot")
	}
}

func TestAddInitializer(t *testing.T) {
	g := New("g")

	w, _ := tensor.NewFloat32([]float32{1, 2}, []int64{2})

	v, err := g.AddInitializer("w", w)
	if err != nil {
		t.Fatalf("AddInitializer error: %v", err)
	}

	if v.Type() == nil || v.Type().DType != tensor.Float32 {
		t.Fatalf("initializer value type not derived: %v", v.Type())
	}

	got, ok := g.Initializer("w")
	if !ok || !tensor.Equal(got, w) {
		t.Fatal("initializer not stored")
	}

	if _, err := g.AddInitializer("w", w); err == nil {
		t.Fatal("expected duplicate initializer error")
	}

	if _, err := g.AddInitializer("z", nil); err == nil {
		t.Fatal("expected nil tensor error")
	}
}

func TestTopoOrder(t *testing.T) {
	g := New("g")
	// Deliberately added out of dependency order.
	g.NewNode("late", "Mul").In("c", "d").Out("e").MustAdd()
	g.NewNode("early", "Add").In("a", "b").Out("c").MustAdd()

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder error: %v", err)
	}

	if len(order) != 2 || g.Node(order[0]).Name() != "early" || g.Node(order[1]).Name() != "late" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestTopoOrderCycle(t *testing.T) {
	g := New("g")
	g.NewNode("a", "Relu").In("y").Out("x").MustAdd()
	g.NewNode("b", "Relu").In("x").Out("y").MustAdd()

	if _, err := g.TopoOrder(); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestTopoOrderSkipsTombstones(t *testing.T) {
	g := New("g")
	g.NewNode("a", "Relu").In("x").Out("y").MustAdd()
	dead := g.NewNode("b", "Relu").In("y").Out("z").MustAdd()
	g.NewNode("c", "Relu").In("y").Out("w").MustAdd()

	if err := g.RemoveNode(dead.Index()); err != nil {
		t.Fatalf("RemoveNode error: %v", err)
	}

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder error: %v", err)
	}

	if len(order) != 2 {
		t.Fatalf("order %v must cover live nodes only", order)
	}
}

func TestOuterScopeMarks(t *testing.T) {
	g := New("g")

	g.MarkOuterScope("v")
	g.MarkOuterScope("v")
	g.MarkOuterScope("a")

	if !g.IsOuterScopeName("v") || g.IsOuterScopeName("x") {
		t.Fatal("unexpected outer-scope membership")
	}

	names := g.OuterScopeNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "v" {
		t.Fatalf("unexpected outer-scope names %v", names)
	}
}
