package graph

import (
	"fmt"
)

// Resolve validates the graph tree rooted here and computes its derived
// structure: implicit inputs of control-flow nodes, outer-scope markings for
// closure captures, and, when the input list was never set explicitly, the
// inferred declared inputs. After a successful Resolve every value name a
// node references is a local node output, a declared input or initializer,
// or an outer-scope value backed by an ancestor.
func (g *Graph) Resolve() error {
	if g.parentGraph != nil {
		return fmt.Errorf("graph: resolve must start at the root, graph %q has parent %q", g.name, g.parentGraph.name)
	}

	_, err := g.resolveScope(map[string]struct{}{})

	return err
}

// resolveScope processes one graph of the tree. outer holds every name
// visible from enclosing scopes. The returned slice lists, in first-use
// order, the names this graph's subtree could satisfy only through outer.
func (g *Graph) resolveScope(outer map[string]struct{}) ([]string, error) {
	produced := map[string]struct{}{}

	for _, n := range g.nodes {
		if n == nil {
			continue
		}

		for _, out := range n.outputs {
			if _, dup := produced[out.Name()]; dup {
				return nil, fmt.Errorf("graph: value %q is produced by more than one node in graph %q", out.Name(), g.name)
			}

			produced[out.Name()] = struct{}{}
		}
	}

	declared := map[string]struct{}{}
	for _, in := range g.inputs {
		declared[in.Name()] = struct{}{}
	}

	for name := range g.initializers {
		declared[name] = struct{}{}
	}

	isLocal := func(name string) bool {
		if _, ok := produced[name]; ok {
			return true
		}

		_, ok := declared[name]

		return ok
	}

	var captured []string

	capturedSet := map[string]struct{}{}
	capture := func(name string) {
		if _, ok := capturedSet[name]; ok {
			return
		}

		capturedSet[name] = struct{}{}
		captured = append(captured, name)
		g.MarkOuterScope(name)
	}

	infer := g.parentGraph == nil && !g.inputsSet

	var inferred []*Value

	for _, n := range g.nodes {
		if n == nil {
			continue
		}

		if len(n.subgraphOrder) > 0 {
			// Child graphs see everything visible at this level: the
			// enclosing scopes plus this graph's full value table, matching
			// how a name referenced only by a sibling still resolves.
			childOuter := make(map[string]struct{}, len(outer)+len(g.values))
			for name := range outer {
				childOuter[name] = struct{}{}
			}

			for name := range g.values {
				childOuter[name] = struct{}{}
			}

			var implicitNames []string

			implicitSet := map[string]struct{}{}

			for _, attrName := range n.subgraphOrder {
				childCaptured, err := n.subgraphs[attrName].resolveScope(childOuter)
				if err != nil {
					return nil, err
				}

				for _, name := range childCaptured {
					if _, ok := implicitSet[name]; ok {
						continue
					}

					implicitSet[name] = struct{}{}
					implicitNames = append(implicitNames, name)
				}
			}

			implicit := make([]*Value, 0, len(implicitNames))
			for _, name := range implicitNames {
				implicit = append(implicit, g.ValueRef(name, nil))
			}

			n.setImplicit(implicit)
		}

		check := func(v *Value) error {
			name := v.Name()

			if isLocal(name) {
				return nil
			}

			if _, ok := outer[name]; ok {
				capture(name)
				return nil
			}

			if infer {
				declared[name] = struct{}{}
				inferred = append(inferred, v)

				return nil
			}

			return fmt.Errorf("graph: node %q in graph %q references undefined value %q", n.name, g.name, name)
		}

		for _, in := range n.inputs {
			if err := check(in); err != nil {
				return nil, err
			}
		}

		for _, in := range n.implicit {
			if err := check(in); err != nil {
				return nil, err
			}
		}
	}

	if infer {
		g.inputs = inferred
		g.inputsSet = true
	}

	for _, out := range g.outputs {
		name := out.Name()
		if isLocal(name) {
			continue
		}

		if _, ok := outer[name]; ok && g.parentGraph != nil {
			capture(name)
			continue
		}

		return nil, fmt.Errorf("graph: declared output %q is not produced or declared in graph %q", name, g.name)
	}

	if _, err := g.TopoOrder(); err != nil {
		return nil, err
	}

	return captured, nil
}
