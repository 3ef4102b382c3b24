package main

import (
	"fmt"

	"github.com/spf13/cobra"

	txmn "github.com/mpjuers/transmission/pkg/transmission"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored training table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			runID, _ := cmd.Flags().GetString("run")
			latest, _ := cmd.Flags().GetBool("latest")
			out, _ := cmd.Flags().GetString("out")

			summary, err := client.Export(cmd.Context(), txmn.ExportRequest{
				RunID:   runID,
				Latest:  latest,
				OutPath: out,
			})
			if err != nil {
				return err
			}

			return emit(cmd, summary, func() {
				fmt.Printf("exported %d rows from run %s to %s\n", summary.Rows, summary.RunID, summary.Path)
			})
		},
	}

	cmd.Flags().String("run", "", "Training run ID")
	cmd.Flags().Bool("latest", false, "Use the most recent training run")
	cmd.Flags().String("out", "", "Output CSV path")
	return cmd
}
