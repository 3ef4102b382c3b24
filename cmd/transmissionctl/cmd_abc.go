package main

import (
	"fmt"

	"github.com/spf13/cobra"

	txmn "github.com/mpjuers/transmission/pkg/transmission"
)

func newABCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abc",
		Short: "Estimate a posterior from a stored training run",
		Long: `abc compares an observed summary-statistic vector against a stored
training table, accepts the closest fraction of draws, and optionally
applies local-linear regression adjustment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			runID, _ := cmd.Flags().GetString("run")
			latest, _ := cmd.Flags().GetBool("latest")
			targetSpec, _ := cmd.Flags().GetString("target")
			tol, _ := cmd.Flags().GetFloat64("tol")
			radius, _ := cmd.Flags().GetFloat64("radius")
			adjust, _ := cmd.Flags().GetBool("adjust")

			names, values, err := parseTarget(targetSpec)
			if err != nil {
				return err
			}
			if radius > 0 {
				tol = 0
			}

			summary, err := client.Estimate(cmd.Context(), txmn.EstimateRequest{
				RunID:        runID,
				Latest:       latest,
				TargetStats:  names,
				TargetValues: values,
				Tolerance:    tol,
				Radius:       radius,
				Adjust:       adjust,
			})
			if err != nil {
				return err
			}

			return emit(cmd, summary, func() {
				rule := fmt.Sprintf("tol=%g", summary.Tolerance)
				if summary.Radius > 0 {
					rule = fmt.Sprintf("radius=%g", summary.Radius)
				}
				fmt.Printf("run %s: accepted %d draws (%s)\n", summary.RunID, summary.Accepted, rule)
				for _, name := range []string{"eta", "tau", "rho"} {
					raw := summary.Raw[name]
					adj := summary.Adjusted[name]
					fmt.Printf("  %-4s raw mean=%.6g var=%.6g  adjusted mean=%.6g var=%.6g\n",
						name, raw.Mean, raw.Variance, adj.Mean, adj.Variance)
				}
				if len(summary.ZeroVarianceStats) > 0 {
					fmt.Printf("  note: zero-variance statistics excluded from distance: %v\n", summary.ZeroVarianceStats)
				}
			})
		},
	}

	cmd.Flags().String("run", "", "Training run ID")
	cmd.Flags().Bool("latest", false, "Use the most recent training run")
	cmd.Flags().String("target", "", "Observed statistics as name=value pairs, comma-separated")
	cmd.Flags().Float64("tol", 0.1, "Accepted fraction of training draws, in (0, 1]")
	cmd.Flags().Float64("radius", 0, "Absolute acceptance radius (overrides --tol when set)")
	cmd.Flags().Bool("adjust", false, "Apply local-linear regression adjustment")
	return cmd
}
