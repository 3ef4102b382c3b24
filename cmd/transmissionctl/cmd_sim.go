package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpjuers/transmission/internal/model"
	txmn "github.com/mpjuers/transmission/pkg/transmission"
)

func newSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run one simulation and print its summary statistics",
		Long: `sim runs a single coalescent simulation for a fixed parameter triple and
prints the reduced summary statistics. Useful for building a synthetic
target before estimating against real data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			eta, _ := cmd.Flags().GetFloat64("eta")
			tau, _ := cmd.Flags().GetFloat64("tau")
			rho, _ := cmd.Flags().GetFloat64("rho")
			hostTheta, _ := cmd.Flags().GetFloat64("host-theta")
			hostNm, _ := cmd.Flags().GetFloat64("host-nm")
			npop, _ := cmd.Flags().GetInt("npop")
			nchrom, _ := cmd.Flags().GetInt("nchrom")
			statsSpec, _ := cmd.Flags().GetString("stats")
			keep, _ := cmd.Flags().GetIntSlice("keep-pops")
			averageReps, _ := cmd.Flags().GetBool("average-reps")
			reps, _ := cmd.Flags().GetInt("num-replicates")
			seed, _ := cmd.Flags().GetInt64("seed")
			migrationPath, _ := cmd.Flags().GetString("migration")

			migration, err := loadMigrationCSV(migrationPath)
			if err != nil {
				return err
			}

			result, err := client.Sim(cmd.Context(), txmn.SimRequest{
				Params:        model.ParameterTriple{Eta: eta, Tau: tau, Rho: rho},
				Host:          model.HostEstimates{Theta: hostTheta, Nm: hostNm},
				SampleSizes:   model.UniformLayout(npop, nchrom).SampleSizes,
				Stats:         parseStatsFlag(statsSpec),
				KeepPops:      keep,
				AverageReps:   averageReps,
				Migration:     migration,
				NumReplicates: reps,
				Seed:          seed,
			})
			if err != nil {
				return err
			}

			return emit(cmd, result, func() {
				for _, name := range result.Columns {
					fmt.Printf("%-12s", name)
				}
				fmt.Println()
				for _, row := range result.Rows {
					for _, v := range row {
						fmt.Printf("%-12.6g", v)
					}
					fmt.Println()
				}
			})
		},
	}

	cmd.Flags().Float64("eta", 0, "Log10 mutation-rate ratio")
	cmd.Flags().Float64("tau", 0.5, "Vertical transmission fraction")
	cmd.Flags().Float64("rho", 0.5, "Female fraction of the population")
	cmd.Flags().Float64("host-theta", 1, "Host theta estimate")
	cmd.Flags().Float64("host-nm", 2, "Host migration parameter estimate")
	cmd.Flags().Int("npop", 2, "Number of populations")
	cmd.Flags().Int("nchrom", 10, "Chromosomes sampled per population")
	cmd.Flags().String("stats", "fst_mean,fst_sd", "Comma-separated statistics to compute")
	cmd.Flags().IntSlice("keep-pops", nil, "Restrict statistics to these population indices")
	cmd.Flags().Bool("average-reps", true, "Average statistics across replicates")
	cmd.Flags().Int("num-replicates", 25, "Replicates per simulation")
	cmd.Flags().Int64("seed", 1, "Engine random seed")
	cmd.Flags().String("migration", "", "CSV file with a relative migration matrix")
	return cmd
}
