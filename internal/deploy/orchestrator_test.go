package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/internal/stores"
	"github.com/systmms/specdeploy/tests/fakes"
)

const (
	testGUID = "11111111-2222-3333-4444-555555555555"

	hexClient   = "aaaaaaaaaaaaaaaa"
	hexEnv      = "bbbbbbbbbbbbbbbb"
	hexConn     = "cccccccccccccccc"
	hexPipeline = "dddddddddddddddd"
)

func testLogger() *logging.Logger {
	return logging.New(false, true)
}

func stubIDs() *fakes.StubIDSource {
	return &fakes.StubIDSource{
		HexValues: []string{hexClient, hexEnv, hexConn, hexPipeline},
		GUID:      testGUID,
	}
}

// writeFixture lays out a one-environment input directory and returns it.
func writeFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func standardFixture(t *testing.T) string {
	t.Helper()
	return writeFixture(t, map[string]string{
		"client.json": `{"tag": "acme", "name": "Acme Corp"}`,
		"environments.json": `{
			"prod": {
				"tag": "prod",
				"secret": {"db_password": "hunter2"},
				"connections": {
					"db": {"host": "db.example.com", "password": "secret.db_password"}
				},
				"pipelines": {
					"main": {"connections": {"source": "db"}}
				}
			}
		}`,
		"download_rules.json": `[
			{"description": "take csv files", "type": "file_pattern", "values": "*.csv", "pipeline": "main"},
			{"description": "other pipeline only", "type": "file_pattern", "values": "*.txt", "pipeline": "other"}
		]`,
		"enrichment_rules.json": `[
			{"environment_id": "prod", "version": 1, "rules_json": "{\"steps\":[]}"}
		]`,
	})
}

func liveStores(t *testing.T, ssmFake *fakes.FakeSSMClient, ddbFake *fakes.FakeDynamoDBClient) (*stores.SSMParameterStore, *stores.DynamoTableStore) {
	t.Helper()
	ps, err := stores.NewSSMParameterStore(context.Background(), "us-east-1", testLogger(), stores.WithSSMClient(ssmFake))
	require.NoError(t, err)
	ts, err := stores.NewDynamoTableStore(context.Background(), "us-east-1", testLogger(), stores.WithDynamoDBClient(ddbFake))
	require.NoError(t, err)
	return ps, ts
}

func liveOptions(inputDir string) Options {
	return Options{
		InputDir:            inputDir,
		Region:              "us-east-1",
		DownloadRuleTable:   "spec-download-rule",
		EnrichmentRuleTable: "spec-enrichment-rule",
	}
}

func TestRun_FullDeployment(t *testing.T) {
	ssmFake := fakes.NewFakeSSMClient()
	ddbFake := fakes.NewFakeDynamoDBClient()
	ps, ts := liveStores(t, ssmFake, ddbFake)

	o := New(liveOptions(standardFixture(t)), ps, ts, stubIDs(), testLogger())
	res, err := o.Run(context.Background())
	require.NoError(t, err)

	clientID := "acme-cid-" + hexClient
	envID := "acme-prod-" + hexEnv
	connID := "acme-con-" + hexConn
	pipeID := "acme-pipe-" + hexPipeline

	assert.True(t, res.Success)
	assert.Empty(t, res.Failures)
	assert.Equal(t, clientID, res.ClientID)
	assert.Equal(t, "acme", res.ClientTag)
	assert.Equal(t, map[string]string{"prod": envID}, res.EnvironmentIDs)
	assert.Equal(t, []string{pipeID}, res.PipelineIDs["prod"])
	assert.Equal(t, 2, res.RuleInserts, "one filtered download rule plus one enrichment rule")
	assert.Zero(t, res.RuleFailures)

	// Client configuration blob carries the generated id.
	clientBlob, ok := ssmFake.ParameterValue("/spec/enrichment/clients/" + clientID + "/config")
	require.True(t, ok)
	var client map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(clientBlob), &client))
	assert.Equal(t, clientID, client["id"])
	assert.Equal(t, "Acme Corp", client["name"])

	// Environment blob: secrets stripped, references rewritten.
	envBlob, ok := ssmFake.ParameterValue("/spec/enrichment/clients/" + clientID + "/envs/" + envID + "/config")
	require.True(t, ok)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(envBlob), &env))
	assert.Equal(t, envID, env["id"])
	_, hasSecrets := env["secret"]
	assert.False(t, hasSecrets, "secret material must never reach the environment blob")

	conns := env["connections"].(map[string]interface{})
	db := conns[connID].(map[string]interface{})
	assert.Equal(t,
		"/spec/enrichment/clients/"+clientID+"/envs/"+envID+"/secrets/db_password",
		db["password"])

	pipes := env["pipelines"].(map[string]interface{})
	main := pipes[pipeID].(map[string]interface{})
	assert.Equal(t, connID, main["connections"].(map[string]interface{})["source"])

	// The secret itself goes to its own SecureString parameter.
	secretPut := findPut(t, ssmFake, "/spec/enrichment/clients/"+clientID+"/envs/"+envID+"/secrets/db_password")
	assert.Equal(t, "hunter2", secretPut.Value)
	assert.Equal(t, "SecureString", secretPut.Type)

	// Download rules: only the record scoped to the pipeline, under the
	// shared batch identifier.
	downloadItems := ddbFake.Items["spec-download-rule"]
	require.Len(t, downloadItems, 1)
	assert.Equal(t, testGUID+"#rule_1", fakes.StringAttr(downloadItems[0], "rule_id"))
	assert.Equal(t, envID, fakes.StringAttr(downloadItems[0], "env_id"))
	assert.Equal(t, clientID, fakes.StringAttr(downloadItems[0], "client_id"))
	assert.Equal(t, pipeID, fakes.StringAttr(downloadItems[0], "pipeline_id"))
	assert.Equal(t, "take csv files", fakes.StringAttr(downloadItems[0], "description"))

	// Enrichment rules: shorthand environment key resolved, client id
	// defaulted.
	enrichmentItems := ddbFake.Items["spec-enrichment-rule"]
	require.Len(t, enrichmentItems, 1)
	assert.Equal(t, envID, fakes.StringAttr(enrichmentItems[0], "environment_id"))
	assert.Equal(t, "1", fakes.NumberAttr(enrichmentItems[0], "version"))
	assert.Equal(t, clientID, fakes.StringAttr(enrichmentItems[0], "client_id"))
}

func TestRun_MissingClientTagWritesNothing(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"client.json":           `{"name": "No Tag Inc"}`,
		"environments.json":     `{"prod": {"tag": "prod"}}`,
		"download_rules.json":   `[]`,
		"enrichment_rules.json": `[]`,
	})

	ssmFake := fakes.NewFakeSSMClient()
	ddbFake := fakes.NewFakeDynamoDBClient()
	ps, ts := liveStores(t, ssmFake, ddbFake)

	_, err := New(liveOptions(dir), ps, ts, stubIDs(), testLogger()).Run(context.Background())
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "tag", cfgErr.Field)
	assert.Empty(t, ssmFake.Puts)
	assert.Empty(t, ddbFake.Items)
}

func TestRun_PreflightBlocksOnMissingTable(t *testing.T) {
	ssmFake := fakes.NewFakeSSMClient()
	ddbFake := fakes.NewFakeDynamoDBClient()
	ddbFake.MissingTables["spec-download-rule"] = true
	ps, ts := liveStores(t, ssmFake, ddbFake)

	_, err := New(liveOptions(standardFixture(t)), ps, ts, stubIDs(), testLogger()).Run(context.Background())
	var userErr dserrors.UserError
	require.ErrorAs(t, err, &userErr)
	assert.Contains(t, userErr.Message, "does not exist")
	assert.Empty(t, ssmFake.Puts, "preflight failures abort before any write")
}

func TestRun_DryRunMatchesLivePayloads(t *testing.T) {
	fixture := map[string]string{
		"client.json": `{"tag": "acme"}`,
		"environments.json": `{
			"prod": {
				"tag": "prod",
				"secret": {"db_password": "hunter2"},
				"connections": {"db": {"password": "secret.db_password"}},
				"pipelines": {"main": {"connections": {"source": "db"}}}
			}
		}`,
		"download_rules.json":   `[{"description": "d", "type": "t", "values": "v", "pipeline": "main"}]`,
		"enrichment_rules.json": `[{"environment_id": "prod", "version": 2, "rules_json": "{}"}]`,
	}

	// Live run.
	ssmFake := fakes.NewFakeSSMClient()
	ddbFake := fakes.NewFakeDynamoDBClient()
	ps, ts := liveStores(t, ssmFake, ddbFake)
	liveRes, err := New(liveOptions(writeFixture(t, fixture)), ps, ts, stubIDs(), testLogger()).Run(context.Background())
	require.NoError(t, err)
	require.True(t, liveRes.Success)

	// Dry run with the same deterministic identifiers and no stores.
	artifactDir := t.TempDir()
	opts := liveOptions(writeFixture(t, fixture))
	opts.DryRun = true
	opts.ArtifactDir = artifactDir
	dryRes, err := New(opts, nil, nil, stubIDs(), testLogger()).Run(context.Background())
	require.NoError(t, err)
	require.True(t, dryRes.Success)
	assert.True(t, dryRes.DryRun)
	assert.Equal(t, artifactDir, dryRes.ArtifactDir)
	assert.Len(t, ssmFake.Puts, 3, "the dry run adds no store writes beyond the live run's")

	assert.Equal(t, liveRes.ClientID, dryRes.ClientID)
	assert.Equal(t, liveRes.EnvironmentIDs, dryRes.EnvironmentIDs)
	assert.Equal(t, liveRes.RuleInserts, dryRes.RuleInserts)

	// The environment artifact is the same logical payload the live run
	// sent to the parameter store.
	envID := liveRes.EnvironmentIDs["prod"]
	liveBlob, ok := ssmFake.ParameterValue("/spec/enrichment/clients/" + liveRes.ClientID + "/envs/" + envID + "/config")
	require.True(t, ok)
	artifact, err := os.ReadFile(filepath.Join(artifactDir, "environment_prod_config.json"))
	require.NoError(t, err)
	assert.JSONEq(t, liveBlob, string(artifact))

	// Secrets land in a plaintext review artifact, not in the store.
	secrets, err := os.ReadFile(filepath.Join(artifactDir, "environment_prod_secrets.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"db_password": "hunter2"}`, string(secrets))

	// The client artifact matches the live client blob.
	liveClientBlob, ok := ssmFake.ParameterValue("/spec/enrichment/clients/" + liveRes.ClientID + "/config")
	require.True(t, ok)
	clientArtifact, err := os.ReadFile(filepath.Join(artifactDir, "client_config.json"))
	require.NoError(t, err)
	assert.JSONEq(t, liveClientBlob, string(clientArtifact))

	// The download rule artifact carries the same item the live run wrote.
	pipeID := dryRes.PipelineIDs["prod"][0]
	ruleArtifact, err := os.ReadFile(filepath.Join(artifactDir, "rules_"+pipeID+".json"))
	require.NoError(t, err)
	var ruleItems []map[string]string
	require.NoError(t, json.Unmarshal(ruleArtifact, &ruleItems))
	require.Len(t, ruleItems, 1)

	liveRuleItems := ddbFake.Items["spec-download-rule"]
	require.Len(t, liveRuleItems, 1)
	for _, field := range []string{"rule_id", "env_id", "client_id", "pipeline_id", "description", "type", "values"} {
		assert.Equal(t, fakes.StringAttr(liveRuleItems[0], field), ruleItems[0][field], "field %s", field)
	}

	// Likewise for the enrichment rule batch.
	enrichmentArtifact, err := os.ReadFile(filepath.Join(artifactDir, "enrichment_rules.json"))
	require.NoError(t, err)
	var enrichmentItems []map[string]interface{}
	require.NoError(t, json.Unmarshal(enrichmentArtifact, &enrichmentItems))
	require.Len(t, enrichmentItems, 1)

	liveEnrichmentItems := ddbFake.Items["spec-enrichment-rule"]
	require.Len(t, liveEnrichmentItems, 1)
	assert.Equal(t, fakes.StringAttr(liveEnrichmentItems[0], "environment_id"), enrichmentItems[0]["environment_id"])
	assert.Equal(t, fakes.NumberAttr(liveEnrichmentItems[0], "version"), fmt.Sprintf("%v", enrichmentItems[0]["version"]))
	assert.Equal(t, fakes.StringAttr(liveEnrichmentItems[0], "rules_json"), enrichmentItems[0]["rules_json"])
	assert.Equal(t, fakes.StringAttr(liveEnrichmentItems[0], "client_id"), enrichmentItems[0]["client_id"])
}

func TestRun_UnresolvedReferences(t *testing.T) {
	fixture := map[string]string{
		"client.json": `{"tag": "acme"}`,
		"environments.json": `{
			"prod": {
				"tag": "prod",
				"connections": {"db": {"password": "secret.never_defined"}},
				"pipelines": {"main": {"connections": {"source": "db"}}}
			}
		}`,
		"download_rules.json":   `[]`,
		"enrichment_rules.json": `[]`,
	}

	t.Run("warns by default", func(t *testing.T) {
		ps, ts := liveStores(t, fakes.NewFakeSSMClient(), fakes.NewFakeDynamoDBClient())
		res, err := New(liveOptions(writeFixture(t, fixture)), ps, ts, stubIDs(), testLogger()).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("strict mode fails the unit", func(t *testing.T) {
		ps, ts := liveStores(t, fakes.NewFakeSSMClient(), fakes.NewFakeDynamoDBClient())
		opts := liveOptions(writeFixture(t, fixture))
		opts.Strict = true
		res, err := New(opts, ps, ts, stubIDs(), testLogger()).Run(context.Background())
		require.NoError(t, err)

		assert.False(t, res.Success)
		require.Len(t, res.Failures, 1)
		f := res.Failures[0]
		assert.Equal(t, "prod", f.Environment)
		assert.Equal(t, "rewrite", f.Stage)
		assert.Contains(t, f.Reason, "never_defined")
	})
}

func TestRun_SecretWriteFailureContinues(t *testing.T) {
	ssmFake := fakes.NewFakeSSMClient()
	clientID := "acme-cid-" + hexClient
	envID := "acme-prod-" + hexEnv
	ssmFake.Errors["/spec/enrichment/clients/"+clientID+"/envs/"+envID+"/secrets/db_password"] =
		errors.New(`ValidationException: value "hunter2" rejected`)

	ddbFake := fakes.NewFakeDynamoDBClient()
	ps, ts := liveStores(t, ssmFake, ddbFake)

	res, err := New(liveOptions(standardFixture(t)), ps, ts, stubIDs(), testLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "secrets", res.Failures[0].Stage)
	assert.Equal(t, "prod", res.Failures[0].Environment)

	// The store error echoed the plaintext; the recorded reason must not.
	assert.NotContains(t, res.Failures[0].Reason, "hunter2")
	assert.Contains(t, res.Failures[0].Reason, "[REDACTED]")

	// Environment config was still written and download rules still ran.
	_, ok := ssmFake.ParameterValue("/spec/enrichment/clients/" + clientID + "/envs/" + envID + "/config")
	assert.True(t, ok)
	assert.Len(t, ddbFake.Items["spec-download-rule"], 1)
}

func TestRun_SkipFlags(t *testing.T) {
	dir := writeFixture(t, map[string]string{
		"client.json":       `{"tag": "acme"}`,
		"environments.json": `{"prod": {"tag": "prod"}}`,
	})

	ssmFake := fakes.NewFakeSSMClient()
	ddbFake := fakes.NewFakeDynamoDBClient()
	ps, ts := liveStores(t, ssmFake, ddbFake)

	opts := liveOptions(dir)
	opts.SkipDownloadRules = true
	opts.SkipEnrichmentRules = true
	res, err := New(opts, ps, ts, stubIDs(), testLogger()).Run(context.Background())
	require.NoError(t, err)

	// Rule files were never required and no table was touched.
	assert.True(t, res.Success)
	assert.Empty(t, ddbFake.Items)
	assert.Len(t, ssmFake.Puts, 2, "client and environment config only")
}

func findPut(t *testing.T, fake *fakes.FakeSSMClient, name string) fakes.SSMPut {
	t.Helper()
	for _, put := range fake.Puts {
		if put.Name == name {
			return put
		}
	}
	t.Fatalf("no parameter written at %s", name)
	return fakes.SSMPut{}
}
