package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the model graph and check it resolves",
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

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: graph %q resolves (%d nodes)\n", g.Name(), g.NumNodes())

			return err
		},
	}

	return cmd
}
