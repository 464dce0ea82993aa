package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/systmms/specdeploy/cmd/specdeploy/commands"
	"github.com/systmms/specdeploy/internal/config"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()

	// Wipe any secret material still held in protected memory before the
	// process exits.
	memguard.Purge()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		metricsGateway string
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "specdeploy",
		Short: "Deploy client enrichment configuration to the parameter and rule stores",
		Long: `specdeploy provisions a client's configuration tree: it rewrites symbolic
keys into generated identifiers, pushes client and environment config (and
secrets) to SSM Parameter Store, and inserts download and enrichment rules
into their DynamoDB tables. A dry run writes the same payloads to local
files for review instead.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)

			if metricsGateway != "" {
				metrics.InitMetrics()
			}

			cfg.Path = configFile
			cfg.Logger = logger
			return cfg.Load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "specdeploy.yaml", "Defaults file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsGateway, "metrics-gateway", "", "Pushgateway URL to push this run's counters to")

	// Add commands
	rootCmd.AddCommand(
		commands.NewDeployCommand(cfg),
		commands.NewClientConfigCommand(cfg),
		commands.NewDownloadRulesCommand(cfg),
		commands.NewEnrichmentRulesCommand(cfg),
	)

	err := rootCmd.Execute()

	// Push counters even when the run failed: the failure counts are the
	// interesting ones.
	if metricsGateway != "" {
		if perr := metrics.Push(metricsGateway); perr != nil {
			cfg.Logger.Warn("Failed to push metrics to %s: %v", metricsGateway, perr)
		}
	}

	return err
}
