package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored training runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := client.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			return emit(cmd, runs, func() {
				if len(runs) == 0 {
					fmt.Println("no training runs stored")
					return
				}
				for _, run := range runs {
					fmt.Printf("%s  %s  draws=%d completed=%d skipped=%d stats=%v\n",
						run.RunID, run.CreatedAtUTC, run.NumSimulations, run.Completed, run.Skipped, run.Stats)
				}
			})
		},
	}

	cmd.Flags().Int("limit", 0, "Maximum runs to list (0 lists all)")
	return cmd
}
