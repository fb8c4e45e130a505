package partition

import (
	"strings"
	"testing"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

func TestCarveSingleLevel(t *testing.T) {
	g := buildChain(t)

	carved, err := Carve(g, Region{Indices: []int{0, 1}})
	if err != nil {
		t.Fatalf("Carve error: %v", err)
	}

	if carved.Graph.NumNodes() != 2 {
		t.Fatalf("rebuilt node count %d, want 2", carved.Graph.NumNodes())
	}

	if !strings.HasPrefix(carved.Graph.Name(), "chain_region_") {
		t.Fatalf("rebuilt name %q must derive from the source graph", carved.Graph.Name())
	}

	// c is consumed only inside the region; e is the graph output.
	wantNames(t, names(carved.Graph.Outputs()), []string{"e"})

	if len(carved.Corr) != 2 {
		t.Fatalf("correspondence has %d entries, want 2", len(carved.Corr))
	}

	for rebuiltNode, originalNode := range carved.Corr {
		if rebuiltNode.Name() != originalNode.Name() {
			t.Fatalf("correspondence pairs %q with %q", rebuiltNode.Name(), originalNode.Name())
		}

		if rebuiltNode.Graph() == originalNode.Graph() {
			t.Fatal("correspondence must pair nodes from distinct graphs")
		}
	}
}

func TestCarveUniqueNames(t *testing.T) {
	g := buildChain(t)

	a, err := Carve(g, Region{Indices: []int{0, 1}})
	if err != nil {
		t.Fatalf("Carve error: %v", err)
	}

	b, err := Carve(g, Region{Indices: []int{0, 1}})
	if err != nil {
		t.Fatalf("Carve error: %v", err)
	}

	if a.Graph.Name() == b.Graph.Name() {
		t.Fatalf("two carves produced the same name %q", a.Graph.Name())
	}
}

func TestCarveExportsMidRegionValue(t *testing.T) {
	g := graph.New("g")
	g.NewNode("add1", "Add").In("a", "b").Out("c").MustAdd()
	g.NewNode("mul1", "Mul").In("c", "d").Out("e").MustAdd()
	g.NewNode("relu1", "Relu").In("c").Out("f").MustAdd()
	g.SetOutputs([]*graph.Value{g.ValueRef("e", nil), g.ValueRef("f", nil)})

	// relu1 stays behind and still needs c.
	carved, err := Carve(g, Region{Indices: []int{0, 1}})
	if err != nil {
		t.Fatalf("Carve error: %v", err)
	}

	wantNames(t, names(carved.Graph.Outputs()), []string{"c", "e"})
}

func TestCarveCopiesInitializers(t *testing.T) {
	g := graph.New("g")

	w, err := tensor.NewFloat32([]float32{2}, []int64{1})
	if err != nil {
		t.Fatalf("NewFloat32 error: %v", err)
	}

	if _, err := g.AddInitializer("w", w); err != nil {
		t.Fatalf("AddInitializer error: %v", err)
	}

	g.NewNode("mul1", "Mul").In("a", "w").Out("b").MustAdd()
	g.SetOutputs([]*graph.Value{g.ValueRef("b", nil)})

	carved, err := Carve(g, Region{Indices: []int{0}})
	if err != nil {
		t.Fatalf("Carve error: %v", err)
	}

	got, ok := carved.Graph.Initializer("w")
	if !ok {
		t.Fatal("initializer w must travel with the region")
	}

	if !tensor.Equal(got, w) {
		t.Fatal("copied initializer differs from the original")
	}
}

func TestCarveCopiesSubgraphTree(t *testing.T) {
	top, _, _ := buildIfTree(t)

	// Claim the If node (slot 1).
	carved, err := Carve(top, Region{Indices: []int{1}})
	if err != nil {
		t.Fatalf("Carve error: %v", err)
	}

	copied := carved.Graph.Node(0)
	if copied == nil || copied.OpType() != "If" {
		t.Fatalf("rebuilt slot 0 is %v, want the If copy", copied)
	}

	thenCopy := copied.Subgraph("then_branch")
	if thenCopy == nil {
		t.Fatal("then branch was not copied")
	}

	if thenCopy.ParentNode() != copied {
		t.Fatal("copied branch must point at the copied parent node")
	}

	wantNames(t, names(thenCopy.Outputs()), []string{"z"})

	// Nested nodes appear in the correspondence too.
	if len(carved.Corr) != 3 {
		t.Fatalf("correspondence has %d entries, want 3 (If plus two branch nodes)", len(carved.Corr))
	}
}

func TestCarveRejectsEmptyRegion(t *testing.T) {
	g := buildChain(t)

	if _, err := Carve(g, Region{}); err == nil {
		t.Fatal("empty region must not carve")
	}
}

func TestCarveRejectsTombstonedSlot(t *testing.T) {
	g := buildChain(t)
	if err := g.RemoveNode(0); err != nil {
		t.Fatalf("RemoveNode error: %v", err)
	}

	if _, err := Carve(g, Region{Indices: []int{0}}); err == nil {
		t.Fatal("region over a tombstoned slot must not carve")
	}
}
