package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"doctools/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "doctools",
	Short: "doctools - classify, split and extract documents with Document AI",
	Long: `doctools turns uploaded tax and finance documents into flat records.

Files are classified with Document AI classifier processors, bundles are
split into one file per detected document, each document is extracted by the
parser its classification routes to, and the extracted entities are
flattened into records for BigQuery, Google Sheets, Firestore or Redis.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("doctools executed")

		fmt.Println("Welcome to doctools!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
	rootCmd.PersistentFlags().String("processors", "", "Path to the YAML processor map (default: $PROCESSOR_CONFIG)")
}
