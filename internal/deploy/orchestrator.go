// Package deploy sequences a full deployment run: client configuration,
// per-environment configuration and secrets, per-pipeline download rules,
// and enrichment rules. Stages run strictly in order; per-unit failures
// are recorded in the aggregate result and sibling units continue, while
// top-level failures (missing inputs, unreachable stores, client config
// write) abort the run.
package deploy

import (
	"context"
	"fmt"
	"sort"

	"github.com/systmms/specdeploy/internal/dryrun"
	"github.com/systmms/specdeploy/internal/identity"
	"github.com/systmms/specdeploy/internal/inputs"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/internal/metrics"
	"github.com/systmms/specdeploy/internal/params"
	"github.com/systmms/specdeploy/internal/rules"
	"github.com/systmms/specdeploy/internal/secure"
	"github.com/systmms/specdeploy/pkg/paramstore"
	"github.com/systmms/specdeploy/pkg/tablestore"
)

// Options configures one deployment run.
type Options struct {
	InputDir            string
	Region              string
	DownloadRuleTable   string
	EnrichmentRuleTable string

	// DryRun substitutes artifact writes (under ArtifactDir) for every
	// remote store write.
	DryRun      bool
	ArtifactDir string

	SkipDownloadRules   bool
	SkipEnrichmentRules bool

	// Strict turns unresolved symbolic references into unit failures
	// instead of warnings.
	Strict bool
}

// UnitFailure identifies one failed deployment unit.
type UnitFailure struct {
	Environment string
	Pipeline    string
	Stage       string
	Reason      string
}

// Result is the aggregate outcome of one run, built incrementally as the
// stages execute and returned by Run. It is never shared or mutated
// outside the running orchestrator.
type Result struct {
	ClientID  string
	ClientTag string

	EnvironmentIDs  map[string]string
	PipelineIDs     map[string][]string
	PipelineKeyMaps map[string]map[string]string

	RuleInserts  int
	RuleFailures int

	Failures []UnitFailure

	DryRun      bool
	ArtifactDir string

	// Success is true only when every unit succeeded.
	Success bool
}

// Orchestrator drives one deployment run.
type Orchestrator struct {
	opts       Options
	paramStore paramstore.Store
	tableStore tablestore.Store
	ids        identity.IDSource
	logger     *logging.Logger
	metrics    *metrics.DeploymentMetrics
}

// New creates an orchestrator. paramStore and tableStore may be nil for
// dry runs.
func New(opts Options, paramStore paramstore.Store, tableStore tablestore.Store, ids identity.IDSource, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		opts:       opts,
		paramStore: paramStore,
		tableStore: tableStore,
		ids:        ids,
		logger:     logger,
		metrics:    metrics.NewDeploymentMetrics(),
	}
}

// Run executes the full pipeline for one client and returns the aggregate
// result. The returned error is non-nil only for top-level failures that
// aborted the run.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	loader := inputs.NewLoader(o.opts.InputDir)
	if err := loader.CheckDir(); err != nil {
		return nil, err
	}

	client, clientTag, err := loader.LoadClient()
	if err != nil {
		return nil, err
	}
	environments, err := loader.LoadEnvironments()
	if err != nil {
		return nil, err
	}

	var downloadRules, enrichmentRules []interface{}
	if !o.opts.SkipDownloadRules {
		if downloadRules, err = loader.LoadDownloadRules(); err != nil {
			return nil, err
		}
	}
	if !o.opts.SkipEnrichmentRules {
		if enrichmentRules, err = loader.LoadEnrichmentRules(); err != nil {
			return nil, err
		}
	}

	if err := o.preflight(ctx); err != nil {
		return nil, err
	}

	var artifacts *dryrun.Writer
	if o.opts.DryRun {
		if artifacts, err = dryrun.NewWriter(o.opts.ArtifactDir, o.logger); err != nil {
			return nil, err
		}
	}

	paramDeployer := &params.Deployer{Store: o.paramStore, Artifacts: artifacts, Logger: o.logger}
	downloadDeployer := &rules.DownloadDeployer{
		Store: o.tableStore, Table: o.opts.DownloadRuleTable,
		IDs: o.ids, Artifacts: artifacts, Logger: o.logger,
	}
	enrichmentDeployer := &rules.EnrichmentDeployer{
		Store: o.tableStore, Table: o.opts.EnrichmentRuleTable,
		Artifacts: artifacts, Logger: o.logger,
	}

	// Stage 1: client configuration. Failure here is terminal: nothing
	// else has an identity to deploy under.
	o.logger.Step("STEP 1: Creating client configuration in the parameter store")

	clientID := identity.NewID(clientTag, "cid", o.ids)
	client["id"] = clientID
	o.logger.Info("Generated client ID: %s", clientID)

	if err := paramDeployer.DeployClientConfig(ctx, clientID, client); err != nil {
		return nil, err
	}
	o.metrics.RecordParameterWrite("client_config")

	res := &Result{
		ClientID:        clientID,
		ClientTag:       clientTag,
		EnvironmentIDs:  map[string]string{},
		PipelineIDs:     map[string][]string{},
		PipelineKeyMaps: map[string]map[string]string{},
		DryRun:          o.opts.DryRun,
	}
	if artifacts != nil {
		res.ArtifactDir = artifacts.Dir()
	}

	// Stage 2: environments, one at a time, in sorted key order.
	for _, envKey := range sortedEnvKeys(environments) {
		o.deployEnvironment(ctx, res, envKey, environments[envKey], clientTag, paramDeployer, downloadDeployer, downloadRules)
	}

	// Stage 3: enrichment rules, once per run with the complete
	// environment map so shorthand keys resolve.
	if !o.opts.SkipEnrichmentRules {
		o.logger.Step("STEP 3: Inserting enrichment rules")
		r, err := enrichmentDeployer.Insert(ctx, enrichmentRules, res.EnvironmentIDs, clientID)
		res.RuleInserts += r.Inserted
		res.RuleFailures += r.Failed
		o.metrics.RecordRuleInserts(o.opts.EnrichmentRuleTable, r.Inserted, r.Failed)
		if err != nil {
			res.fail(UnitFailure{Stage: "enrichment rules", Reason: err.Error()}, o.metrics)
		} else if r.Failed > 0 {
			res.fail(UnitFailure{Stage: "enrichment rules", Reason: fmt.Sprintf("%d of %d inserts failed", r.Failed, r.Total)}, o.metrics)
		}
	}

	res.Success = len(res.Failures) == 0
	return res, nil
}

// deployEnvironment runs every per-environment stage. Failures are
// recorded against the unit and the caller proceeds to the next
// environment.
func (o *Orchestrator) deployEnvironment(ctx context.Context, res *Result, envKey string, envCfg map[string]interface{}, clientTag string, paramDeployer *params.Deployer, downloadDeployer *rules.DownloadDeployer, downloadRules []interface{}) {
	o.logger.Step("Processing environment: %s", envKey)

	secrets, err := inputs.ExtractSecrets(envCfg)
	if err != nil {
		res.fail(UnitFailure{Environment: envKey, Stage: "secrets", Reason: err.Error()}, o.metrics)
		return
	}
	bundle := secure.NewBundle(secrets)
	secretNames := make(map[string]bool, len(secrets))
	for name := range secrets {
		secretNames[name] = true
	}

	envTag, _ := envCfg["tag"].(string)
	envID := identity.NewID(clientTag, envTag, o.ids)
	envCfg["id"] = envID
	res.EnvironmentIDs[envKey] = envID
	o.logger.Info("Generated environment ID: %s", envID)

	rewritten := identity.Rewrite(envCfg, secretNames, clientTag, res.ClientID, envID, o.ids)
	res.PipelineIDs[envKey] = rewritten.PipelineIDs
	res.PipelineKeyMaps[envKey] = rewritten.PipelineKeyMap

	for _, ref := range rewritten.Unresolved {
		reason := fmt.Sprintf("%s reference '%s' in %s.%s does not resolve", ref.Kind, ref.Symbol, ref.Owner, ref.Field)
		if o.opts.Strict {
			res.fail(UnitFailure{Environment: envKey, Stage: "rewrite", Reason: reason}, o.metrics)
		} else {
			o.logger.Warn("%s (left unchanged)", reason)
		}
	}

	if err := paramDeployer.DeployEnvConfig(ctx, res.ClientID, envKey, envID, rewritten.Config); err != nil {
		res.fail(UnitFailure{Environment: envKey, Stage: "environment config", Reason: err.Error()}, o.metrics)
		return
	}
	o.metrics.RecordParameterWrite("environment_config")

	written, secretErrs := paramDeployer.DeploySecrets(ctx, res.ClientID, envKey, envID, bundle)
	for i := 0; i < written; i++ {
		o.metrics.RecordParameterWrite("secret")
	}
	if len(secretErrs) > 0 {
		// Store errors can echo the rejected value; failure reasons end up
		// in the printed summary, so scrub secret material out of them.
		var secretValues []string
		if revealed, err := bundle.RevealAll(); err == nil {
			for _, value := range revealed {
				secretValues = append(secretValues, value)
			}
		}
		for _, serr := range secretErrs {
			reason := logging.Redact(serr.Error(), secretValues)
			res.fail(UnitFailure{Environment: envKey, Stage: "secrets", Reason: reason}, o.metrics)
		}
	}

	if o.opts.SkipDownloadRules {
		return
	}

	if len(rewritten.PipelineIDs) == 0 {
		o.logger.Warn("No pipelines found for environment %s", envKey)
		return
	}

	idToKey := make(map[string]string, len(rewritten.PipelineKeyMap))
	for key, id := range rewritten.PipelineKeyMap {
		idToKey[id] = key
	}

	for _, pipelineID := range rewritten.PipelineIDs {
		pipelineKey := idToKey[pipelineID]
		o.logger.Info("Inserting rules for pipeline: %s (key: %s)", pipelineID, pipelineKey)

		r, err := downloadDeployer.Insert(ctx, rules.DownloadInput{
			EnvID:       envID,
			ClientID:    res.ClientID,
			PipelineID:  pipelineID,
			Rules:       downloadRules,
			PipelineKey: pipelineKey,
		})
		res.RuleInserts += r.Inserted
		res.RuleFailures += r.Failed
		o.metrics.RecordRuleInserts(o.opts.DownloadRuleTable, r.Inserted, r.Failed)

		if err != nil {
			res.fail(UnitFailure{Environment: envKey, Pipeline: pipelineKey, Stage: "download rules", Reason: err.Error()}, o.metrics)
			continue
		}
		if r.Failed > 0 {
			res.fail(UnitFailure{Environment: envKey, Pipeline: pipelineKey, Stage: "download rules",
				Reason: fmt.Sprintf("%d of %d inserts failed", r.Failed, r.Total)}, o.metrics)
		}
	}
}

// preflight verifies store connectivity before any write. Dry runs touch
// no store and skip it.
func (o *Orchestrator) preflight(ctx context.Context) error {
	if o.opts.DryRun {
		return nil
	}

	if err := o.paramStore.Validate(ctx); err != nil {
		return err
	}
	if !o.opts.SkipDownloadRules {
		if err := o.tableStore.Describe(ctx, o.opts.DownloadRuleTable); err != nil {
			return err
		}
	}
	if !o.opts.SkipEnrichmentRules {
		if err := o.tableStore.Describe(ctx, o.opts.EnrichmentRuleTable); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) fail(f UnitFailure, m *metrics.DeploymentMetrics) {
	r.Failures = append(r.Failures, f)
	m.RecordUnitFailure(f.Stage)
}

func sortedEnvKeys(envs map[string]map[string]interface{}) []string {
	keys := make([]string, 0, len(envs))
	for k := range envs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
