package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPartitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Run the partitioning pass and report the claimed regions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			g, err := loadModel(cfg)
			if err != nil {
				return err
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			prepared, err := eng.Prepare(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer prepared.Close()

			out := cmd.OutOrStdout()
			report := prepared.Report()

			fmt.Fprintf(out, "regions: %d offered, %d fused\n", len(report.Regions), report.Accepted())

			for _, region := range report.Regions {
				status := "fused"
				if !region.Accepted {
					status = "rejected"
				}

				fmt.Fprintf(out, "  [%s] backend=%s nodes=[%s]",
					status, region.Backend, strings.Join(region.Nodes, ", "))

				if len(region.HoistedInputs) > 0 {
					fmt.Fprintf(out, " hoisted=[%s]", strings.Join(region.HoistedInputs, ", "))
				}

				if region.Reason != "" {
					fmt.Fprintf(out, " reason=%q", region.Reason)
				}

				fmt.Fprintln(out)

				for _, d := range region.Diagnostics {
					fmt.Fprintf(out, "    %s\n", d)
				}
			}

			return nil
		},
	}

	return cmd
}
