package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/dryrun"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/pkg/tablestore"
)

// EnrichmentDeployer writes enrichment rules for one run. The store key
// is the (environment_id, version) pair; rows carry no synthetic
// identifier.
type EnrichmentDeployer struct {
	Store     tablestore.Store
	Table     string
	Artifacts *dryrun.Writer
	Logger    *logging.Logger
}

// enrichmentItem is one normalized record.
type enrichmentItem struct {
	EnvironmentID string
	Version       string // integer-valued decimal string
	RulesJSON     string
	ClientID      string // empty when the row carries none
}

// Insert normalizes and writes one batch of enrichment rules. envIDMap
// resolves shorthand symbolic environment keys; defaultClientID fills a
// missing client_id. Any normalization failure aborts the whole batch
// before a single row is written.
func (d *EnrichmentDeployer) Insert(ctx context.Context, rules []interface{}, envIDMap map[string]string, defaultClientID string) (Result, error) {
	items := make([]enrichmentItem, 0, len(rules))
	for i, rec := range rules {
		item, err := normalizeEnrichmentRule(rec, i+1, envIDMap, defaultClientID)
		if err != nil {
			return Result{Total: len(rules)}, err
		}
		items = append(items, item)
	}

	warnDuplicateKeys(items, d.Logger)

	res := Result{Total: len(items)}
	var artifacts []map[string]interface{}

	for _, item := range items {
		if d.Artifacts != nil {
			d.Logger.Info("Would insert enrichment rule env_id=%s version=%s (rules_json length=%d)",
				item.EnvironmentID, item.Version, len(item.RulesJSON))
			artifacts = append(artifacts, item.readable())
			res.Inserted++
			continue
		}

		if err := d.Store.PutRow(ctx, d.Table, item.row()); err != nil {
			d.Logger.Error("Error inserting env_id=%s version=%s: %v", item.EnvironmentID, item.Version, err)
			res.Failed++
			continue
		}
		d.Logger.Debug("Successfully inserted enrichment rule env_id=%s version=%s", item.EnvironmentID, item.Version)
		res.Inserted++
	}

	if d.Artifacts != nil && len(artifacts) > 0 {
		if err := d.Artifacts.WriteJSON("enrichment_rules.json", artifacts); err != nil {
			return res, err
		}
	}

	res.Success = res.Failed == 0
	return res, nil
}

func (item enrichmentItem) row() tablestore.Row {
	row := tablestore.Row{
		"environment_id": tablestore.String(item.EnvironmentID),
		"version":        tablestore.Number(item.Version),
		"rules_json":     tablestore.String(item.RulesJSON),
	}
	if item.ClientID != "" {
		row["client_id"] = tablestore.String(item.ClientID)
	}
	return row
}

func (item enrichmentItem) readable() map[string]interface{} {
	version, _ := strconv.ParseInt(item.Version, 10, 64)
	out := map[string]interface{}{
		"environment_id": item.EnvironmentID,
		"version":        version,
		"rules_json":     item.RulesJSON,
	}
	if item.ClientID != "" {
		out["client_id"] = item.ClientID
	}
	return out
}

// normalizeEnrichmentRule validates one record and resolves its fields.
// index is the record's 1-based position.
func normalizeEnrichmentRule(rec interface{}, index int, envIDMap map[string]string, defaultClientID string) (enrichmentItem, error) {
	rule, ok := rec.(map[string]interface{})
	if !ok {
		return enrichmentItem{}, dserrors.ValidationError{Index: index, Message: "item must be a JSON object"}
	}

	envID := unwrapTyped(rule["environment_id"])
	if envID == nil {
		return enrichmentItem{}, dserrors.ValidationError{Index: index, Field: "environment_id", Message: "environment_id is required"}
	}
	envIDStr := asString(envID)
	if mapped, ok := envIDMap[envIDStr]; ok {
		envIDStr = mapped
	}

	version := unwrapTyped(rule["version"])
	if version == nil {
		return enrichmentItem{}, dserrors.ValidationError{Index: index, Field: "version", Message: "version is required"}
	}
	versionStr, err := coerceVersion(version)
	if err != nil {
		return enrichmentItem{}, dserrors.ValidationError{Index: index, Field: "version", Message: err.Error()}
	}

	rulesJSON := unwrapTyped(rule["rules_json"])
	if rulesJSON == nil {
		return enrichmentItem{}, dserrors.ValidationError{Index: index, Field: "rules_json", Message: "rules_json is required"}
	}

	clientID := asString(unwrapTyped(rule["client_id"]))
	if clientID == "" {
		clientID = defaultClientID
	}

	return enrichmentItem{
		EnvironmentID: envIDStr,
		Version:       versionStr,
		RulesJSON:     asString(rulesJSON),
		ClientID:      clientID,
	}, nil
}

// unwrapTyped accepts both plain JSON values and table-store-typed ones
// like {"S": "x"} or {"N": "3"}.
func unwrapTyped(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	if s, ok := m["S"]; ok {
		return s
	}
	if n, ok := m["N"]; ok {
		return n
	}
	return v
}

// asString renders a JSON scalar (or structure) as its string payload.
func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}

// coerceVersion turns a version field into an integer-valued decimal
// string. Fractional numbers are truncated; non-numeric strings fail.
func coerceVersion(v interface{}) (string, error) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatInt(int64(t), 10), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return "", fmt.Errorf("version '%s' is not a number", t)
		}
		return strconv.FormatInt(n, 10), nil
	default:
		return "", fmt.Errorf("version '%v' is not a number", v)
	}
}

// warnDuplicateKeys flags (environment_id, version) pairs that appear
// more than once in one batch: the second write overwrites the first in
// the store.
func warnDuplicateKeys(items []enrichmentItem, logger *logging.Logger) {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		key := item.EnvironmentID + "\x00" + item.Version
		if seen[key] {
			logger.Warn("Duplicate enrichment rule key env_id=%s version=%s: the later record overwrites the earlier one",
				item.EnvironmentID, item.Version)
		}
		seen[key] = true
	}
}
