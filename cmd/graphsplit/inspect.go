package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-graphsplit/internal/graph"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a structural summary of the model graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			g, err := loadModel(cfg)
			if err != nil {
				return err
			}

			if err := g.Resolve(); err != nil {
				return err
			}

			printGraph(cmd.OutOrStdout(), g, 0)

			return nil
		},
	}

	return cmd
}

func printGraph(w io.Writer, g *graph.Graph, depth int) {
	pad := strings.Repeat("  ", depth)

	fmt.Fprintf(w, "%sgraph %q: %d nodes, %d inputs, %d outputs, %d initializers\n",
		pad, g.Name(), g.NumNodes(), len(g.Inputs()), len(g.Outputs()), len(g.InitializerNames()))

	for _, n := range g.Nodes() {
		fmt.Fprintf(w, "%s  %s %s(%s) -> (%s)",
			pad, n.Name(), n.OpType(),
			joinValueNames(n.Inputs()), joinValueNames(n.Outputs()))

		if implicit := n.ImplicitInputs(); len(implicit) > 0 {
			fmt.Fprintf(w, " captures (%s)", joinValueNames(implicit))
		}

		fmt.Fprintln(w)

		for _, attrName := range n.SubgraphNames() {
			fmt.Fprintf(w, "%s  %s:\n", pad, attrName)
			printGraph(w, n.Subgraph(attrName), depth+2)
		}
	}
}

func joinValueNames(values []*graph.Value) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = v.Name()
	}

	return strings.Join(names, ", ")
}
