package partition

import (
	"fmt"

	"github.com/example/go-graphsplit/internal/graph"
)

const (
	// FusedOp is the op type of a node that stands in for a claimed region.
	FusedOp = "FusedRegion"

	// RegionAttr names the string attribute carrying the region id on a
	// fused node. The engine uses it to find the compiled plan.
	RegionAttr = "region"
)

// Fuse replaces the claimed region in g with a single node delegating to the
// carved graph. The fused node's inputs are the carved graph's declared
// non-initializer inputs, its outputs are the carved graph's outputs, and the
// claimed slots are tombstoned. The carved graph must have its input list
// installed (finalized or resolved) before fusing.
func Fuse(g *graph.Graph, region Region, carved *Carved, domain, regionID string) (*graph.Node, error) {
	sub := carved.Graph
	if !sub.InputsSet() {
		return nil, fmt.Errorf("partition: cannot fuse region %q before its inputs are finalized", regionID)
	}

	var inputNames []string

	for _, in := range sub.Inputs() {
		if _, ok := sub.Initializer(in.Name()); ok {
			// Constants travel inside the carved graph.
			continue
		}

		inputNames = append(inputNames, in.Name())
	}

	outputNames := make([]string, 0, len(sub.Outputs()))
	for _, out := range sub.Outputs() {
		outputNames = append(outputNames, out.Name())
	}

	if len(outputNames) == 0 {
		return nil, fmt.Errorf("partition: region %q has no outputs to expose", regionID)
	}

	for _, idx := range region.Indices {
		if err := g.RemoveNode(idx); err != nil {
			return nil, fmt.Errorf("partition: fusing region %q: %w", regionID, err)
		}
	}

	node, err := g.NewNode(FusedOp+"_"+regionID, FusedOp).
		Domain(domain).
		In(inputNames...).
		Out(outputNames...).
		AttrString(RegionAttr, regionID).
		Add()
	if err != nil {
		return nil, fmt.Errorf("partition: fusing region %q: %w", regionID, err)
	}

	return node, nil
}
