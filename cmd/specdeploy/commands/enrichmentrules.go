package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/specdeploy/internal/config"
	"github.com/systmms/specdeploy/internal/dryrun"
	"github.com/systmms/specdeploy/internal/inputs"
	"github.com/systmms/specdeploy/internal/rules"
	"github.com/systmms/specdeploy/internal/stores"
)

func NewEnrichmentRulesCommand(cfg *config.Config) *cobra.Command {
	var (
		inputDir    string
		tableName   string
		region      string
		clientID    string
		dryRun      bool
		artifactDir string
	)

	cmd := &cobra.Command{
		Use:   "enrichment-rules",
		Short: "Insert enrichment rules into the enrichment rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := valueOr(tableName, cfg.Defaults.EnrichmentRuleTable)

			loader := inputs.NewLoader(inputDir)
			records, err := loader.LoadEnrichmentRules()
			if err != nil {
				return err
			}
			cfg.Logger.Info("Found %d enrichment rule item(s) in file", len(records))

			ctx := context.Background()
			deployer := &rules.EnrichmentDeployer{
				Table:  table,
				Logger: cfg.Logger,
			}

			if dryRun {
				cfg.Logger.Info("DRY RUN MODE: No items will be inserted")
				dir := artifactDir
				if dir == "" {
					dir = dryrun.TimestampedDir(cfg.Defaults.ArtifactRoot, time.Now())
				}
				if deployer.Artifacts, err = dryrun.NewWriter(dir, cfg.Logger); err != nil {
					return err
				}
			} else {
				store, err := stores.NewDynamoTableStore(ctx, valueOr(region, cfg.Defaults.Region), cfg.Logger)
				if err != nil {
					return err
				}
				if err := store.Describe(ctx, table); err != nil {
					return err
				}
				deployer.Store = store
			}

			// Standalone invocations have no run-scoped environment map;
			// records must carry full environment identifiers.
			res, err := deployer.Insert(ctx, records, nil, clientID)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== ENRICHMENT INSERT SUMMARY ===\n")
			fmt.Printf("Total items processed: %d\n", res.Total)
			fmt.Printf("Successful inserts: %d\n", res.Inserted)
			if !dryRun {
				fmt.Printf("Failed inserts: %d\n", res.Failed)
			}

			if res.Failed > 0 && !dryRun {
				return fmt.Errorf("%d enrichment rules failed to insert", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input-dir", "", "Directory containing enrichment_rules.json")
	cmd.Flags().StringVar(&tableName, "table-name", "", "Enrichment rule table name")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&clientID, "client-id", "", "client_id to use when a record does not specify one")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be inserted without writing")
	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "Dry-run output directory")
	_ = cmd.MarkFlagRequired("input-dir")

	return cmd
}
