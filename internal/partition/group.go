package partition

import (
	"fmt"

	"github.com/example/go-graphsplit/internal/graph"
)

// FormRegions groups the supported node slots of g into regions a backend can
// claim one at a time. Nodes are visited in topological order and join the
// open region unless they depend on one of its outputs through a path that
// crosses an unsupported node; such a node starts the next region instead, so
// fusing any returned region can never create a cycle in the remaining graph.
func FormRegions(g *graph.Graph, supported map[int]bool) ([]Region, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, fmt.Errorf("partition: forming regions: %w", err)
	}

	type valueInfo struct {
		region  int
		carried map[int]struct{}
	}

	// producedBy maps a value name to the taint info of its producing node:
	// which region produced it directly and which regions it depends on
	// through at least one unsupported node.
	producedBy := map[string]valueInfo{}

	const noRegion = -1

	var regions []Region

	open := noRegion

	for _, idx := range order {
		node := g.Node(idx)
		if node == nil {
			continue
		}

		carried := map[int]struct{}{}
		direct := map[int]struct{}{}

		collect := func(values []*graph.Value) {
			for _, in := range values {
				info, ok := producedBy[in.Name()]
				if !ok {
					continue
				}

				if info.region != noRegion {
					direct[info.region] = struct{}{}
				}

				for r := range info.carried {
					carried[r] = struct{}{}
				}
			}
		}

		collect(node.Inputs())
		collect(node.ImplicitInputs())

		if !supported[idx] {
			// Paths through this node taint every upstream region.
			for r := range direct {
				carried[r] = struct{}{}
			}

			for _, out := range node.Outputs() {
				producedBy[out.Name()] = valueInfo{region: noRegion, carried: carried}
			}

			continue
		}

		_, conflicts := carried[open]
		if open == noRegion || conflicts {
			regions = append(regions, Region{})
			open = len(regions) - 1
		}

		regions[open].Indices = append(regions[open].Indices, idx)

		for _, out := range node.Outputs() {
			producedBy[out.Name()] = valueInfo{region: open, carried: carried}
		}
	}

	return regions, nil
}
