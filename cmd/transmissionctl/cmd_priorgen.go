package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpjuers/transmission/internal/model"
	txmn "github.com/mpjuers/transmission/pkg/transmission"
)

func newPriorgenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priorgen",
		Short: "Draw parameters from priors and build a training table",
		Long: `priorgen draws parameter triples from the configured priors, simulates
each draw, and persists the resulting (parameters, statistics) training
table under a run ID.

Default priors: eta ~ Normal(0, 0.1), tau ~ Uniform(0, 1),
rho ~ Beta(10, 10). Override with a YAML file via --priors:

    eta: {kind: normal, mu: 0, sigma: 0.2}
    tau: {kind: uniform, min: 0, max: 1}
    rho: {kind: beta, alpha: 2, beta: 2}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			runID, _ := cmd.Flags().GetString("run-id")
			hostTheta, _ := cmd.Flags().GetFloat64("host-theta")
			hostNm, _ := cmd.Flags().GetFloat64("host-nm")
			npop, _ := cmd.Flags().GetInt("npop")
			nchrom, _ := cmd.Flags().GetInt("nchrom")
			numSims, _ := cmd.Flags().GetInt("num-simulations")
			reps, _ := cmd.Flags().GetInt("num-replicates")
			statsSpec, _ := cmd.Flags().GetString("stats")
			keep, _ := cmd.Flags().GetIntSlice("keep-pops")
			priorSeed, _ := cmd.Flags().GetInt64("prior-seed")
			simSeed, _ := cmd.Flags().GetInt64("sim-seed")
			workers, _ := cmd.Flags().GetInt("workers")
			priorsPath, _ := cmd.Flags().GetString("priors")
			migrationPath, _ := cmd.Flags().GetString("migration")

			priors, err := loadPriorsFile(priorsPath)
			if err != nil {
				return err
			}
			migration, err := loadMigrationCSV(migrationPath)
			if err != nil {
				return err
			}

			summary, err := client.GeneratePriors(cmd.Context(), txmn.PriorsRequest{
				RunID:          runID,
				SampleSizes:    model.UniformLayout(npop, nchrom).SampleSizes,
				Host:           model.HostEstimates{Theta: hostTheta, Nm: hostNm},
				NumSimulations: numSims,
				NumReplicates:  reps,
				Stats:          parseStatsFlag(statsSpec),
				KeepPops:       keep,
				Priors:         priors,
				Migration:      migration,
				PriorSeed:      priorSeed,
				SimSeed:        simSeed,
				Workers:        workers,
			})
			if err != nil {
				return err
			}

			return emit(cmd, summary, func() {
				fmt.Printf("run %s: %d/%d draws completed", summary.RunID, summary.Completed, summary.Requested)
				if summary.Skipped > 0 {
					fmt.Printf(", %d skipped", summary.Skipped)
					for reason, count := range summary.Reasons {
						fmt.Printf(" (%s: %d)", reason, count)
					}
				}
				fmt.Println()
			})
		},
	}

	cmd.Flags().String("run-id", "", "Run ID (generated when empty)")
	cmd.Flags().Float64("host-theta", 1, "Host theta estimate")
	cmd.Flags().Float64("host-nm", 2, "Host migration parameter estimate")
	cmd.Flags().Int("npop", 2, "Number of populations")
	cmd.Flags().Int("nchrom", 10, "Chromosomes sampled per population")
	cmd.Flags().Int("num-simulations", 100, "Prior draws to simulate")
	cmd.Flags().Int("num-replicates", 25, "Replicates per draw")
	cmd.Flags().String("stats", "fst_mean,fst_sd", "Comma-separated statistics to compute")
	cmd.Flags().IntSlice("keep-pops", nil, "Restrict statistics to these population indices")
	cmd.Flags().Int64("prior-seed", 1, "Seed for the parameter draws")
	cmd.Flags().Int64("sim-seed", 1, "Base seed for the per-draw simulations")
	cmd.Flags().Int("workers", 1, "Parallel simulation workers")
	cmd.Flags().String("priors", "", "YAML file overriding the default priors")
	cmd.Flags().String("migration", "", "CSV file with a relative migration matrix")
	return cmd
}
