package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/pkg/tablestore"
)

// recordingStore captures rows and simulates per-row failures.
type recordingStore struct {
	rows       []tablestore.Row
	tables     []string
	failWhen   func(row tablestore.Row) bool
	describeOK bool
}

func (s *recordingStore) Describe(_ context.Context, table string) error {
	if !s.describeOK {
		return errors.New("table does not exist")
	}
	return nil
}

func (s *recordingStore) PutRow(_ context.Context, table string, row tablestore.Row) error {
	if s.failWhen != nil && s.failWhen(row) {
		return errors.New("write throttled")
	}
	s.rows = append(s.rows, row)
	s.tables = append(s.tables, table)
	return nil
}

// fixedIDs returns the same batch GUID every time and sequential hex ids.
type fixedIDs struct {
	guid    string
	counter int
}

func (f *fixedIDs) Hex16() string {
	f.counter++
	return fmt.Sprintf("%016x", f.counter)
}

func (f *fixedIDs) BatchGUID() string {
	return f.guid
}

func testLogger() *logging.Logger {
	return logging.New(false, true)
}

func downloadRules() []interface{} {
	mk := func(desc, pipeline string) map[string]interface{} {
		r := map[string]interface{}{
			"description": desc,
			"type":        "file_pattern",
			"values":      "*.csv",
		}
		if pipeline != "" {
			r["pipeline"] = pipeline
		}
		return r
	}
	return []interface{}{
		mk("rule one", "cc_pipeline"),
		mk("rule two", "dodge_pipeline"),
		mk("rule three", "cc_pipeline"),
		mk("rule four", ""),
		mk("rule five", "dodge_pipeline"),
	}
}

func TestDownloadInsert_FilterAndRuleIDs(t *testing.T) {
	store := &recordingStore{describeOK: true}
	d := &DownloadDeployer{
		Store:  store,
		Table:  "spec-download-rule",
		IDs:    &fixedIDs{guid: "11111111-2222-3333-4444-555555555555"},
		Logger: testLogger(),
	}

	res, err := d.Insert(context.Background(), DownloadInput{
		EnvID:       "acme-prod-0000000000000001",
		ClientID:    "acme-cid-0000000000000002",
		PipelineID:  "acme-pipe-0000000000000003",
		Rules:       downloadRules(),
		PipelineKey: "cc_pipeline",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", res.BatchGUID)

	require.Len(t, store.rows, 2)
	assert.Equal(t, "spec-download-rule", store.tables[0])
	assert.Equal(t, res.BatchGUID+"#rule_1", store.rows[0]["rule_id"].Raw)
	assert.Equal(t, res.BatchGUID+"#rule_2", store.rows[1]["rule_id"].Raw)
	assert.Equal(t, "rule one", store.rows[0]["description"].Raw)
	assert.Equal(t, "rule three", store.rows[1]["description"].Raw)
	assert.Equal(t, "acme-prod-0000000000000001", store.rows[0]["env_id"].Raw)
	assert.Equal(t, "acme-cid-0000000000000002", store.rows[0]["client_id"].Raw)
	assert.Equal(t, "acme-pipe-0000000000000003", store.rows[0]["pipeline_id"].Raw)

	// The scoping tag itself is never persisted.
	_, carried := store.rows[0]["pipeline"]
	assert.False(t, carried)
}

func TestDownloadInsert_NoFilterKeepsAll(t *testing.T) {
	store := &recordingStore{describeOK: true}
	d := &DownloadDeployer{Store: store, Table: "t", IDs: &fixedIDs{guid: "g"}, Logger: testLogger()}

	res, err := d.Insert(context.Background(), DownloadInput{
		EnvID: "e", ClientID: "c", PipelineID: "p",
		Rules: downloadRules(),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Inserted)
	assert.Len(t, store.rows, 5)
}

func TestDownloadInsert_EmptyBatch(t *testing.T) {
	store := &recordingStore{describeOK: true}
	d := &DownloadDeployer{Store: store, Table: "t", IDs: &fixedIDs{guid: "g"}, Logger: testLogger()}

	res, err := d.Insert(context.Background(), DownloadInput{
		EnvID: "e", ClientID: "c", PipelineID: "p",
		Rules:       downloadRules(),
		PipelineKey: "no_such_pipeline",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Total)
	assert.Empty(t, store.rows)
	assert.Empty(t, res.BatchGUID, "no batch identifier is minted for an empty batch")
}

func TestDownloadInsert_ValidationAbortsBeforeWrites(t *testing.T) {
	store := &recordingStore{describeOK: true}
	d := &DownloadDeployer{Store: store, Table: "t", IDs: &fixedIDs{guid: "g"}, Logger: testLogger()}

	rules := []interface{}{
		map[string]interface{}{"description": "ok", "type": "file_pattern", "values": "*.csv"},
		map[string]interface{}{"description": "missing values", "type": "file_pattern"},
	}

	res, err := d.Insert(context.Background(), DownloadInput{
		EnvID: "e", ClientID: "c", PipelineID: "p", Rules: rules,
	})

	var valErr dserrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, 2, valErr.Index)
	assert.Equal(t, "values", valErr.Field)
	assert.Empty(t, store.rows, "a validation failure must abort with nothing written")
	assert.Zero(t, res.Inserted)
}

func TestDownloadInsert_RejectsNonObjectRecord(t *testing.T) {
	d := &DownloadDeployer{Store: &recordingStore{}, Table: "t", IDs: &fixedIDs{guid: "g"}, Logger: testLogger()}

	_, err := d.Insert(context.Background(), DownloadInput{
		EnvID: "e", ClientID: "c", PipelineID: "p",
		Rules: []interface{}{"not an object"},
	})
	var valErr dserrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, 1, valErr.Index)
	assert.Contains(t, valErr.Message, "object")
}

func TestDownloadInsert_NonObjectRecordFailsFilteredBatchToo(t *testing.T) {
	store := &recordingStore{describeOK: true}
	d := &DownloadDeployer{Store: store, Table: "t", IDs: &fixedIDs{guid: "g"}, Logger: testLogger()}

	rules := []interface{}{
		map[string]interface{}{"description": "d", "type": "t", "values": "v", "pipeline": "main"},
		"not an object",
	}

	_, err := d.Insert(context.Background(), DownloadInput{
		EnvID: "e", ClientID: "c", PipelineID: "p",
		Rules:       rules,
		PipelineKey: "main",
	})

	var valErr dserrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, 2, valErr.Index)
	assert.Contains(t, valErr.Message, "object")
	assert.Empty(t, store.rows, "malformed records abort the batch even under a pipeline filter")
}

func TestDownloadInsert_RejectsNonStringField(t *testing.T) {
	d := &DownloadDeployer{Store: &recordingStore{}, Table: "t", IDs: &fixedIDs{guid: "g"}, Logger: testLogger()}

	_, err := d.Insert(context.Background(), DownloadInput{
		EnvID: "e", ClientID: "c", PipelineID: "p",
		Rules: []interface{}{map[string]interface{}{
			"description": "d", "type": "t", "values": float64(7),
		}},
	})
	var valErr dserrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "values", valErr.Field)
}

func TestDownloadInsert_PartialWriteFailure(t *testing.T) {
	store := &recordingStore{
		describeOK: true,
		failWhen: func(row tablestore.Row) bool {
			return strings.HasSuffix(row["rule_id"].Raw, "#rule_2")
		},
	}
	d := &DownloadDeployer{Store: store, Table: "t", IDs: &fixedIDs{guid: "batch"}, Logger: testLogger()}

	res, err := d.Insert(context.Background(), DownloadInput{
		EnvID: "e", ClientID: "c", PipelineID: "p",
		Rules:       downloadRules(),
		PipelineKey: "cc_pipeline",
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "batch#rule_1", store.rows[0]["rule_id"].Raw)
}
