package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/specdeploy/internal/config"
	"github.com/systmms/specdeploy/internal/dryrun"
	"github.com/systmms/specdeploy/internal/identity"
	"github.com/systmms/specdeploy/internal/inputs"
	"github.com/systmms/specdeploy/internal/rules"
	"github.com/systmms/specdeploy/internal/stores"
)

func NewDownloadRulesCommand(cfg *config.Config) *cobra.Command {
	var (
		envID       string
		clientID    string
		pipelineID  string
		pipelineKey string
		inputDir    string
		tableName   string
		region      string
		dryRun      bool
		artifactDir string
	)

	cmd := &cobra.Command{
		Use:   "download-rules",
		Short: "Insert download rules for one pipeline into the rule table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := valueOr(tableName, cfg.Defaults.DownloadRuleTable)

			loader := inputs.NewLoader(inputDir)
			records, err := loader.LoadDownloadRules()
			if err != nil {
				return err
			}
			cfg.Logger.Info("Found %d total rules in file", len(records))

			ctx := context.Background()
			deployer := &rules.DownloadDeployer{
				Table:  table,
				IDs:    identity.NewRandomSource(),
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

			res, err := deployer.Insert(ctx, rules.DownloadInput{
				EnvID:       envID,
				ClientID:    clientID,
				PipelineID:  pipelineID,
				Rules:       records,
				PipelineKey: pipelineKey,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n=== INSERTION SUMMARY ===\n")
			fmt.Printf("Total rules processed: %d\n", res.Total)
			fmt.Printf("Successful inserts: %d\n", res.Inserted)
			if !dryRun {
				fmt.Printf("Failed inserts: %d\n", res.Failed)
			}
			fmt.Printf("Rule GUID: %s\n", res.BatchGUID)
			fmt.Printf("Environment ID: %s\n", envID)
			fmt.Printf("Client ID: %s\n", clientID)
			fmt.Printf("Pipeline ID: %s\n", pipelineID)

			if res.Failed > 0 && !dryRun {
				return fmt.Errorf("%d rules failed to insert", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envID, "env-id", "", "Environment ID")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Client ID")
	cmd.Flags().StringVar(&pipelineID, "pipeline-id", "", "Pipeline ID")
	cmd.Flags().StringVar(&pipelineKey, "pipeline-key", "", "Filter rules to this pipeline symbolic key")
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "Directory containing download_rules.json")
	cmd.Flags().StringVar(&tableName, "table-name", "", "Rule table name")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be inserted without actually inserting")
	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "Dry-run output directory")
	_ = cmd.MarkFlagRequired("env-id")
	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("pipeline-id")
	_ = cmd.MarkFlagRequired("input-dir")

	return cmd
}
