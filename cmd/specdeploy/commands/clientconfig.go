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
)

func NewClientConfigCommand(cfg *config.Config) *cobra.Command {
	var (
		inputDir    string
		region      string
		dryRun      bool
		artifactDir string
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "client-config",
		Short: "Deploy only the client and environment configuration parameters",
		Long: `Client-config runs the parameter store stages without touching the rule
tables: client config, per-environment rewritten config, and secrets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := deploy.Options{
				InputDir:            inputDir,
				Region:              valueOr(region, cfg.Defaults.Region),
				DryRun:              dryRun,
				SkipDownloadRules:   true,
				SkipEnrichmentRules: true,
				Strict:              strict,
			}

			ctx := context.Background()

			var paramStore paramstore.Store
			if dryRun {
				cfg.Logger.Info("DRY RUN MODE: No changes will be made")
				opts.ArtifactDir = artifactDir
				if opts.ArtifactDir == "" {
					opts.ArtifactDir = dryrun.TimestampedDir(cfg.Defaults.ArtifactRoot, time.Now())
				}
			} else {
				var err error
				if paramStore, err = stores.NewSSMParameterStore(ctx, opts.Region, cfg.Logger); err != nil {
					return err
				}
			}

			orch := deploy.New(opts, paramStore, nil, identity.NewRandomSource(), cfg.Logger)
			res, err := orch.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== DEPLOYMENT SUMMARY ===\n")
			fmt.Printf("Client ID: %s\n", res.ClientID)
			fmt.Printf("Client Tag: %s\n", res.ClientTag)
			fmt.Printf("Region: %s\n", opts.Region)
			fmt.Printf("Total environments processed: %d\n", len(res.EnvironmentIDs))

			if !res.Success && !res.DryRun {
				return fmt.Errorf("configuration deployment completed with %d failed unit(s)", len(res.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input-dir", "", "Directory containing configuration files")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without actually doing it")
	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "Dry-run output directory")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat unresolved symbolic references as failures")
	_ = cmd.MarkFlagRequired("input-dir")

	return cmd
}
