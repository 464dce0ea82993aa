package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDeliversCounters(t *testing.T) {
	InitMetrics()

	m := NewDeploymentMetrics()
	m.RecordParameterWrite("client_config")
	m.RecordRuleInserts("spec-download-rule", 3, 1)
	m.RecordUnitFailure("secrets")

	var (
		gotMethod string
		gotPath   string
		gotBody   []byte
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	require.NoError(t, Push(gateway.URL))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/"+PushJobName, gotPath)
	// Metric family names travel verbatim inside the wire payload.
	assert.Contains(t, string(gotBody), "specdeploy_parameters_written_total")
	assert.Contains(t, string(gotBody), "specdeploy_rules_inserted_total")
	assert.Contains(t, string(gotBody), "specdeploy_unit_failures_total")
}

func TestRecordBeforeInitDoesNotPanic(t *testing.T) {
	m := &DeploymentMetrics{}
	assert.NotPanics(t, func() {
		m.RecordParameterWrite("client_config")
		m.RecordRuleInserts("t", 1, 0)
		m.RecordUnitFailure("rewrite")
	})
}
