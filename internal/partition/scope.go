package partition

import (
	"fmt"
	"log/slog"

	"github.com/example/go-graphsplit/internal/graph"
)

// Correspondence maps rebuilt nodes to the original nodes they were copied
// from. Scope restoration consults it before falling back to matching nodes
// by name, which is ambiguous when names repeat across graphs.
type Correspondence map[*graph.Node]*graph.Node

// RestoreOuterScope re-establishes, inside the rebuilt graph tree, the
// closure visibility the original tree had. Walking the rebuilt tree depth
// first and pairing each rebuilt control-flow node with its original, it
// marks every implicit input of the original parent node that the rebuilt
// graph references as an outer-scope value there. When no ancestor in the
// rebuilt tree exposes such a value through the ordinary nested-scope
// chain, the value is hoisted: declared as a new input on the rebuilt root
// and recorded in that root's context, which keeps the rebuilt graph
// self-contained however much of the original ancestor chain the claimed
// region left behind.
//
// A rebuilt node with no matching original does not fail the pass; its
// branch is skipped and the skip is reported in the returned diagnostics so
// the caller can reject the partition instead of shipping one with dangling
// references.
func (r *Registry) RestoreOuterScope(rebuilt, original *graph.Graph, corr Correspondence) []string {
	var diags []string

	r.restoreOuterScope(rebuilt, original, corr, &diags)

	return diags
}

func (r *Registry) restoreOuterScope(rebuilt, original *graph.Graph, corr Correspondence, diags *[]string) {
	for i := 0; i < rebuilt.MaxNodeIndex(); i++ {
		rebuiltNode := rebuilt.Node(i)
		if rebuiltNode == nil || len(rebuiltNode.SubgraphNames()) == 0 {
			continue
		}

		originalNode := corr[rebuiltNode]
		if originalNode == nil {
			originalNode = findNodeByName(original, rebuiltNode.Name())
		}

		if originalNode == nil {
			skip("no original node matches rebuilt node", rebuiltNode.Name(), original.Name(), diags)
			continue
		}

		for _, attrName := range rebuiltNode.SubgraphNames() {
			originalChild := originalNode.Subgraph(attrName)
			if originalChild == nil {
				skip("original node lacks subgraph attribute "+attrName, rebuiltNode.Name(), original.Name(), diags)
				continue
			}

			r.restoreOuterScope(rebuiltNode.Subgraph(attrName), originalChild, corr, diags)
		}
	}

	if rebuilt.ParentNode() == nil {
		return
	}

	originalParent := original.ParentNode()
	if originalParent == nil {
		skip("rebuilt graph is nested but original graph has no parent node", rebuilt.Name(), original.Name(), diags)
		return
	}

	for _, implicit := range originalParent.ImplicitInputs() {
		name := implicit.Name()

		// An implicit input of the parent node may serve one of the node's
		// other subgraphs only. Restore it here only when this rebuilt
		// graph's value table actually references the name.
		if !rebuilt.HasValue(name) {
			continue
		}

		rebuilt.MarkOuterScope(name)

		if r.IsOuterScopeValue(rebuilt, name) {
			continue
		}

		root := rebuilt.Root()
		if declaresInputName(root, name) {
			continue
		}

		hoisted := root.ValueRef(name, implicit.Type())
		r.contextFor(root).addManualInput(hoisted)

		slog.Debug("hoisted closure value to rebuilt root input",
			"value", name,
			"from", rebuilt.Name(),
			"root", root.Name())
	}
}

func skip(reason, node, graphName string, diags *[]string) {
	d := fmt.Sprintf("partition: %s (node %q, original graph %q); outer-scope restoration skipped", reason, node, graphName)
	*diags = append(*diags, d)
	slog.Warn("outer-scope restoration skipped",
		"reason", reason,
		"node", node,
		"original_graph", graphName)
}

func findNodeByName(g *graph.Graph, name string) *graph.Node {
	for i := 0; i < g.MaxNodeIndex(); i++ {
		if n := g.Node(i); n != nil && n.Name() == name {
			return n
		}
	}

	return nil
}

func declaresInputName(g *graph.Graph, name string) bool {
	for _, in := range g.Inputs() {
		if in.Name() == name {
			return true
		}
	}

	return false
}
