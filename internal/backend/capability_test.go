package backend

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

func TestCapabilitySupportsNode(t *testing.T) {
	c := NewCapability([]string{"Add", "MatMul"}, []tensor.DType{tensor.Float32})

	g := graph.New("g")
	addNode := g.NewNode("add1", "Add").In("a", "b").Out("c").MustAdd()
	mulNode := g.NewNode("conv1", "Conv").In("c").Out("d").MustAdd()

	if !c.SupportsNode(addNode) {
		t.Fatal("untyped Add must be claimable")
	}

	if c.SupportsNode(mulNode) {
		t.Fatal("Conv must not be claimable")
	}

	i64 := graph.New("i64")
	n := i64.NewNode("add1", "Add").In("a", "b").Out("c").MustAdd()
	i64.ValueRef("a", nil).SetType(&graph.TypeInfo{DType: tensor.Int64})

	if c.SupportsNode(n) {
		t.Fatal("int64 input must disqualify a float32-only capability")
	}
}

func TestCapabilitySupportedNodes(t *testing.T) {
	c := NewCapability([]string{"Add"}, nil)

	g := graph.New("g")
	g.NewNode("add1", "Add").In("a", "b").Out("c").MustAdd()
	g.NewNode("conv1", "Conv").In("c").Out("d").MustAdd()
	g.NewNode("add2", "Add").In("d", "a").Out("e").MustAdd()

	got := c.SupportedNodes(g)
	if len(got) != 2 || !got[0] || !got[2] || got[1] {
		t.Fatalf("supported slots %v, want {0,2}", got)
	}
}

func TestLoadCapabilities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caps.yaml")
	data := `backends:
  - name: ort
    ops: [Add, Mul, MatMul]
    dtypes: [float32, int64]
  - name: npu
    ops: [MatMul]
`

	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	caps, err := LoadCapabilities(path)
	if err != nil {
		t.Fatalf("LoadCapabilities error: %v", err)
	}

	if len(caps) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(caps))
	}

	if !caps["ort"].SupportsOp("MatMul") || caps["ort"].SupportsOp("Relu") {
		t.Fatal("ort capability mismatch")
	}

	ops := caps["npu"].Ops()
	if len(ops) != 1 || ops[0] != "MatMul" {
		t.Fatalf("npu ops %v, want [MatMul]", ops)
	}
}

func TestLoadCapabilitiesRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"empty.yaml":   `backends: []`,
		"noname.yaml":  "backends:\n  - ops: [Add]\n",
		"noops.yaml":   "backends:\n  - name: ort\n",
		"baddt.yaml":   "backends:\n  - name: ort\n    ops: [Add]\n    dtypes: [float16]\n",
		"dup.yaml":     "backends:\n  - name: ort\n    ops: [Add]\n  - name: ort\n    ops: [Mul]\n",
		"notyaml.yaml": `{{{`,
	}

	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile error: %v", err)
		}

		if _, err := LoadCapabilities(path); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}

	if _, err := LoadCapabilities(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read capability file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	Register("fake-backend", func(Config) (Backend, error) { return nil, nil })

	if _, err := New("fake-backend", Config{}); err != nil {
		t.Fatalf("New error: %v", err)
	}

	if _, err := New("no-such-backend", Config{}); err == nil {
		t.Fatal("unknown backend must error")
	}

	found := false

	for _, name := range Registered() {
		if name == "fake-backend" {
			found = true
		}
	}

	if !found {
		t.Fatalf("Registered() = %v, missing fake-backend", Registered())
	}
}
