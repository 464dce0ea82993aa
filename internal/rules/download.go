// Package rules writes download-rule and enrichment-rule records to the
// table store. Download rules are deployed once per pipeline per
// environment under a shared batch identifier; enrichment rules once per
// run, keyed by environment and version.
package rules

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/dryrun"
	"github.com/systmms/specdeploy/internal/identity"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/pkg/tablestore"
)

// Result summarizes one rule deployer invocation.
type Result struct {
	Success  bool
	Total    int
	Inserted int
	Failed   int
	// BatchGUID is the shared identifier prefixing each download rule's
	// id. Empty for enrichment rules and for empty batches.
	BatchGUID string
}

// downloadRuleSchema validates one download-rule record: the three
// payload fields are required strings, the pipeline scoping tag is an
// optional string.
const downloadRuleSchema = `{
	"type": "object",
	"required": ["description", "type", "values"],
	"properties": {
		"description": {"type": "string"},
		"type": {"type": "string"},
		"values": {"type": "string"},
		"pipeline": {"type": "string"}
	}
}`

var downloadSchemaLoader = gojsonschema.NewStringLoader(downloadRuleSchema)

// DownloadDeployer writes download rules for one pipeline.
type DownloadDeployer struct {
	Store     tablestore.Store
	Table     string
	IDs       identity.IDSource
	Artifacts *dryrun.Writer
	Logger    *logging.Logger
}

// DownloadInput carries the identifiers and records for one invocation.
type DownloadInput struct {
	EnvID      string
	ClientID   string
	PipelineID string
	Rules      []interface{}

	// PipelineKey, when set, filters Rules to records whose "pipeline"
	// field equals it. The field itself is never persisted.
	PipelineKey string
}

// Insert filters, validates, and writes one batch of download rules.
// Every filtered record is validated before anything is written; a
// validation failure aborts the invocation with nothing written. Each
// record is written under {batch_guid}#rule_{n} with n its 1-based
// position in the filtered list.
func (d *DownloadDeployer) Insert(ctx context.Context, in DownloadInput) (Result, error) {
	filtered := filterByPipeline(in.Rules, in.PipelineKey)
	if in.PipelineKey != "" {
		d.Logger.Info("Filtered to %d rules for pipeline '%s'", len(filtered), in.PipelineKey)
	} else {
		d.Logger.Info("No pipeline filter applied - processing all %d rules", len(filtered))
	}

	if len(filtered) == 0 {
		return Result{Success: true}, nil
	}

	// Validate the whole filtered list before writing anything.
	for i, rec := range filtered {
		if err := validateDownloadRule(rec, i+1); err != nil {
			return Result{Total: len(filtered)}, err
		}
	}

	guid := d.IDs.BatchGUID()
	d.Logger.Debug("Generated GUID for rules: %s", guid)

	res := Result{Total: len(filtered), BatchGUID: guid}
	var artifacts []map[string]string

	for i, rec := range filtered {
		rule := rec.(map[string]interface{})
		ruleID := fmt.Sprintf("%s#rule_%d", guid, i+1)

		item := map[string]string{
			"rule_id":     ruleID,
			"env_id":      in.EnvID,
			"client_id":   in.ClientID,
			"pipeline_id": in.PipelineID,
			"description": stringField(rule, "description"),
			"type":        stringField(rule, "type"),
			"values":      stringField(rule, "values"),
		}

		if d.Artifacts != nil {
			d.Logger.Info("Would insert rule %d: %s", i+1, ruleID)
			artifacts = append(artifacts, item)
			res.Inserted++
			continue
		}

		row := tablestore.Row{}
		for name, value := range item {
			row[name] = tablestore.String(value)
		}
		if err := d.Store.PutRow(ctx, d.Table, row); err != nil {
			d.Logger.Error("Error inserting rule %s: %v", ruleID, err)
			res.Failed++
			continue
		}
		d.Logger.Debug("Successfully inserted rule: %s", ruleID)
		res.Inserted++
	}

	if d.Artifacts != nil && len(artifacts) > 0 {
		name := fmt.Sprintf("rules_%s.json", dryrun.SanitizeName(in.PipelineID))
		if err := d.Artifacts.WriteJSON(name, artifacts); err != nil {
			return res, err
		}
	}

	res.Success = res.Failed == 0
	return res, nil
}

// filterByPipeline keeps the records whose "pipeline" field equals key.
// An empty key keeps everything. Non-object records are always kept so
// that validation can report them instead of silently dropping them.
func filterByPipeline(rules []interface{}, key string) []interface{} {
	if key == "" {
		return rules
	}
	var filtered []interface{}
	for _, rec := range rules {
		rule, ok := rec.(map[string]interface{})
		if !ok {
			filtered = append(filtered, rec)
			continue
		}
		if pipeline, _ := rule["pipeline"].(string); pipeline == key {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

// validateDownloadRule checks one record against the schema. index is the
// record's 1-based position in the filtered list.
func validateDownloadRule(rec interface{}, index int) error {
	if _, ok := rec.(map[string]interface{}); !ok {
		return dserrors.ValidationError{Index: index, Message: "must be a JSON object"}
	}

	result, err := gojsonschema.Validate(downloadSchemaLoader, gojsonschema.NewGoLoader(rec))
	if err != nil {
		return dserrors.ValidationError{Index: index, Message: err.Error()}
	}
	if !result.Valid() {
		desc := result.Errors()[0]
		field := desc.Field()
		if field == "(root)" {
			if prop, ok := desc.Details()["property"].(string); ok {
				field = prop
			}
		}
		return dserrors.ValidationError{Index: index, Field: field, Message: desc.Description()}
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
