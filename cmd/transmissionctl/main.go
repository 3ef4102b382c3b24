package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	txmn "github.com/mpjuers/transmission/pkg/transmission"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "transmissionctl",
		Short: "ABC inference of endosymbiont transmission mode",
		Long: `transmissionctl infers co-evolutionary parameters between a host and an
endosymbiont from population-genetic summary statistics.

It simulates coalescent genealogies under candidate parameters, reduces them
to summary statistics, builds prior training tables, and runs ABC rejection
with optional regression adjustment.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("store", "memory", "Store backend: memory or sqlite")
	rootCmd.PersistentFlags().String("db", "transmission.db", "SQLite database path")
	rootCmd.PersistentFlags().String("cache-dir", "", "Directory for the on-disk simulation cache (empty disables)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: warn, info, or debug")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimCmd(),
		newPriorgenCmd(),
		newABCCmd(),
		newRunsCmd(),
		newExportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			}
			fmt.Printf("transmissionctl version %s\n", version)
			return nil
		},
	}
}

func newClient(cmd *cobra.Command) (*txmn.Client, error) {
	storeKind, _ := cmd.Flags().GetString("store")
	dbPath, _ := cmd.Flags().GetString("db")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	logLevel, _ := cmd.Flags().GetString("log-level")
	return txmn.New(txmn.Options{
		StoreKind: storeKind,
		DBPath:    dbPath,
		CacheDir:  cacheDir,
		LogLevel:  logLevel,
	})
}

func emit(cmd *cobra.Command, v any, plain func()) error {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain()
	return nil
}
