package backend

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

// Capability describes the operations and element types a backend can claim.
// Which nodes to hand a backend is decided from this record alone; kernels
// are never consulted.
type Capability struct {
	ops    map[string]struct{}
	dtypes map[tensor.DType]struct{}
}

// NewCapability builds a capability from an op list and a dtype list. An
// empty dtype list means all dtypes are acceptable.
func NewCapability(ops []string, dtypes []tensor.DType) Capability {
	c := Capability{
		ops:    make(map[string]struct{}, len(ops)),
		dtypes: make(map[tensor.DType]struct{}, len(dtypes)),
	}

	for _, op := range ops {
		c.ops[op] = struct{}{}
	}

	for _, dt := range dtypes {
		c.dtypes[dt] = struct{}{}
	}

	return c
}

// SupportsOp reports whether the op type is claimable.
func (c Capability) SupportsOp(op string) bool {
	_, ok := c.ops[op]
	return ok
}

// Ops returns the claimable op types in sorted order.
func (c Capability) Ops() []string {
	out := make([]string, 0, len(c.ops))
	for op := range c.ops {
		out = append(out, op)
	}

	sort.Strings(out)

	return out
}

// SupportsNode reports whether the node's op type and every known input and
// output dtype are claimable. Values without type information do not
// disqualify a node; the structural validator settles those later.
func (c Capability) SupportsNode(n *graph.Node) bool {
	if !c.SupportsOp(n.OpType()) {
		return false
	}

	if len(c.dtypes) == 0 {
		return true
	}

	check := func(values []*graph.Value) bool {
		for _, v := range values {
			typ := v.Type()
			if typ == nil {
				continue
			}

			if _, ok := c.dtypes[typ.DType]; !ok {
				return false
			}
		}

		return true
	}

	return check(n.Inputs()) && check(n.Outputs())
}

// SupportedNodes returns the claimable node slots of g.
func (c Capability) SupportedNodes(g *graph.Graph) map[int]bool {
	out := map[int]bool{}

	for i := 0; i < g.MaxNodeIndex(); i++ {
		n := g.Node(i)
		if n == nil {
			continue
		}

		if c.SupportsNode(n) {
			out[i] = true
		}
	}

	return out
}

type capabilityFile struct {
	Backends []capabilityEntry `yaml:"backends"`
}

type capabilityEntry struct {
	Name   string   `yaml:"name"`
	Ops    []string `yaml:"ops"`
	DTypes []string `yaml:"dtypes"`
}

// LoadCapabilities reads a YAML capability file mapping backend names to op
// and dtype sets:
//
//	backends:
//	  - name: ort
//	    ops: [Add, Mul, MatMul]
//	    dtypes: [float32, int64]
func LoadCapabilities(path string) (map[string]Capability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backend: read capability file: %w", err)
	}

	var file capabilityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("backend: decode capability file %s: %w", path, err)
	}

	if len(file.Backends) == 0 {
		return nil, fmt.Errorf("backend: capability file %s lists no backends", path)
	}

	out := make(map[string]Capability, len(file.Backends))

	for _, entry := range file.Backends {
		if entry.Name == "" {
			return nil, fmt.Errorf("backend: capability file %s has an entry without a name", path)
		}

		if _, dup := out[entry.Name]; dup {
			return nil, fmt.Errorf("backend: capability file %s lists %q twice", path, entry.Name)
		}

		if len(entry.Ops) == 0 {
			return nil, fmt.Errorf("backend: capability entry %q lists no ops", entry.Name)
		}

		dtypes := make([]tensor.DType, 0, len(entry.DTypes))

		for _, raw := range entry.DTypes {
			dt, err := tensor.ParseDType(raw)
			if err != nil {
				return nil, fmt.Errorf("backend: capability entry %q: %w", entry.Name, err)
			}

			dtypes = append(dtypes, dt)
		}

		out[entry.Name] = NewCapability(entry.Ops, dtypes)
	}

	return out, nil
}
