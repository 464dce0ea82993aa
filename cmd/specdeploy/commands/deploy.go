package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/specdeploy/internal/config"
	"github.com/systmms/specdeploy/internal/deploy"
	"github.com/systmms/specdeploy/internal/dryrun"
	"github.com/systmms/specdeploy/internal/identity"
	"github.com/systmms/specdeploy/internal/stores"
	"github.com/systmms/specdeploy/pkg/paramstore"
	"github.com/systmms/specdeploy/pkg/tablestore"
)

func NewDeployCommand(cfg *config.Config) *cobra.Command {
	var (
		inputDir            string
		inputName           string
		tableName           string
		enrichmentTable     string
		region              string
		dryRun              bool
		artifactDir         string
		skipRules           bool
		skipEnrichmentRules bool
		strict              bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy client configuration, download rules, and enrichment rules",
		Long: `Deploy runs the full pipeline for one client: client config to the
parameter store, then per environment the rewritten config, its secrets,
and per-pipeline download rules, and finally the enrichment rules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := resolveInputDir(inputDir, inputName, cfg)

			opts := deploy.Options{
				InputDir:            dir,
				Region:              valueOr(region, cfg.Defaults.Region),
				DownloadRuleTable:   valueOr(tableName, cfg.Defaults.DownloadRuleTable),
				EnrichmentRuleTable: valueOr(enrichmentTable, cfg.Defaults.EnrichmentRuleTable),
				DryRun:              dryRun,
				SkipDownloadRules:   skipRules,
				SkipEnrichmentRules: skipEnrichmentRules,
				Strict:              strict,
			}

			ctx := context.Background()

			var (
				paramStore paramstore.Store
				tableStore tablestore.Store
			)
			if dryRun {
				cfg.Logger.Info("DRY RUN MODE: No changes will be made")
				opts.ArtifactDir = artifactDir
				if opts.ArtifactDir == "" {
					opts.ArtifactDir = dryrun.TimestampedDir(cfg.Defaults.ArtifactRoot, time.Now())
				}
				cfg.Logger.Info("Dry-run outputs will be saved to: %s", opts.ArtifactDir)
			} else {
				var err error
				if paramStore, err = stores.NewSSMParameterStore(ctx, opts.Region, cfg.Logger); err != nil {
					return err
				}
				if tableStore, err = stores.NewDynamoTableStore(ctx, opts.Region, cfg.Logger); err != nil {
					return err
				}
			}

			orch := deploy.New(opts, paramStore, tableStore, identity.NewRandomSource(), cfg.Logger)
			res, err := orch.Run(ctx)
			if err != nil {
				return err
			}

			printDeploySummary(res, opts)

			if !res.Success && !res.DryRun {
				return fmt.Errorf("deployment completed with %d failed unit(s)", len(res.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input-dir", "", "Full path to directory containing configuration files")
	cmd.Flags().StringVar(&inputName, "input", "", "Name of subfolder in the input root (e.g. 'newcustomer')")
	cmd.Flags().StringVar(&tableName, "table-name", "", "Download rule table name")
	cmd.Flags().StringVar(&enrichmentTable, "enrichment-table-name", "", "Enrichment rule table name")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without actually doing it")
	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "Dry-run output directory (default: timestamped under the artifact root)")
	cmd.Flags().BoolVar(&skipRules, "skip-rules", false, "Skip download rules insertion (only create client config)")
	cmd.Flags().BoolVar(&skipEnrichmentRules, "skip-enrichment-rules", false, "Skip enrichment rules insertion")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat unresolved symbolic references as failures")
	cmd.MarkFlagsMutuallyExclusive("input-dir", "input")
	cmd.MarkFlagsOneRequired("input-dir", "input")

	return cmd
}

// printDeploySummary prints the final deployment summary to stdout.
func printDeploySummary(res *deploy.Result, opts deploy.Options) {
	title := "DEPLOYMENT SUMMARY"
	if res.DryRun {
		title = "DRY RUN SUMMARY"
	}
	fmt.Printf("\n=== %s ===\n", title)
	fmt.Printf("Client ID: %s\n", res.ClientID)
	fmt.Printf("Client Tag: %s\n", res.ClientTag)
	fmt.Printf("Region: %s\n", opts.Region)
	fmt.Printf("Environments processed: %d\n", len(res.EnvironmentIDs))

	for envKey, envID := range res.EnvironmentIDs {
		fmt.Printf("  %s: %s\n", envKey, envID)
	}

	if !opts.SkipDownloadRules {
		total := 0
		for _, ids := range res.PipelineIDs {
			total += len(ids)
		}
		fmt.Printf("Total pipelines with rules: %d\n", total)
	}
	fmt.Printf("Rule inserts: %d successful, %d failed\n", res.RuleInserts, res.RuleFailures)

	for _, f := range res.Failures {
		unit := f.Stage
		if f.Environment != "" {
			unit = f.Environment + "/" + unit
		}
		if f.Pipeline != "" {
			unit += " (pipeline " + f.Pipeline + ")"
		}
		fmt.Printf("FAILED %s: %s\n", unit, f.Reason)
	}

	if res.DryRun {
		fmt.Printf("\nAll generated configurations saved to: %s\n", res.ArtifactDir)
		fmt.Println("Review these files before running without --dry-run")
	}
}
