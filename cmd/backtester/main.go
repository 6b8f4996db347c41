package main

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "Simulate allocation strategies against historical prices",
	Long: `backtester replays daily prices through a simulated broker and lets a
strategy rebalance the portfolio every day without seeing future rows.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured strategy once and print its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readOptions(cmd)
		if err != nil {
			return err
		}
		return runOnce(cmd.Context(), opts)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run the strategy through both drivers and report how far they diverge",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readOptions(cmd)
		if err != nil {
			return err
		}
		return compare(cmd.Context(), opts)
	},
}

var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print the report of a stored run, or list stored runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readOptions(cmd)
		if err != nil {
			return err
		}
		return show(cmd.Context(), opts, args)
	},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "Path to the YAML run configuration.")
	rootCmd.PersistentFlags().String("csv-dir", "", "Directory to write return and ledger CSV files to. Overrides results.csv_dir.")
	rootCmd.PersistentFlags().StringP("name", "n", "", "Run name used in reports and file names. Defaults to the strategy kind and a short id.")
	runCmd.Flags().Bool("fast", false, "Use the fast driver, which skips input validation.")

	rootCmd.AddCommand(runCmd, compareCmd, showCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
