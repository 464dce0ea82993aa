// Package metrics exposes Prometheus counters for deployment runs.
// specdeploy is a batch process, so instead of serving a scrape endpoint
// the counters are pushed to a Pushgateway at the end of the run when one
// is configured.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJobName is the Pushgateway job the run's counters are grouped under.
const PushJobName = "specdeploy"

var (
	registry *prometheus.Registry

	parametersWrittenTotal *prometheus.CounterVec
	rulesInsertedTotal     *prometheus.CounterVec
	unitFailuresTotal      *prometheus.CounterVec

	// Registration guard
	metricsOnce       sync.Once
	metricsRegistered bool
)

// DeploymentMetrics provides methods to record deployment metrics.
type DeploymentMetrics struct{}

// NewDeploymentMetrics creates a new DeploymentMetrics instance.
// Counters are registered on first Init.
func NewDeploymentMetrics() *DeploymentMetrics {
	return &DeploymentMetrics{}
}

// InitMetrics initializes all Prometheus metrics in a dedicated registry.
// Call once at startup when metrics are enabled.
func InitMetrics() {
	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()
		factory := promauto.With(registry)

		parametersWrittenTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "specdeploy_parameters_written_total",
				Help: "Total number of parameters written to the parameter store",
			},
			[]string{"kind"},
		)

		rulesInsertedTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "specdeploy_rules_inserted_total",
				Help: "Total number of rule rows written to the table store",
			},
			[]string{"table", "status"},
		)

		unitFailuresTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "specdeploy_unit_failures_total",
				Help: "Total number of failed deployment units",
			},
			[]string{"stage"},
		)

		metricsRegistered = true
	})
}

// Push delivers the run's counters to a Pushgateway, grouped under the
// specdeploy job. A no-op when metrics were never initialized.
func Push(gateway string) error {
	if !metricsRegistered {
		return nil
	}
	return push.New(gateway, PushJobName).Gatherer(registry).Push()
}

// RecordParameterWrite counts one successful parameter write.
func (m *DeploymentMetrics) RecordParameterWrite(kind string) {
	if !metricsRegistered {
		return
	}
	parametersWrittenTotal.WithLabelValues(kind).Inc()
}

// RecordRuleInserts counts rule writes for one batch.
func (m *DeploymentMetrics) RecordRuleInserts(table string, inserted, failed int) {
	if !metricsRegistered {
		return
	}
	rulesInsertedTotal.WithLabelValues(table, "ok").Add(float64(inserted))
	rulesInsertedTotal.WithLabelValues(table, "failed").Add(float64(failed))
}

// RecordUnitFailure counts one failed deployment unit.
func (m *DeploymentMetrics) RecordUnitFailure(stage string) {
	if !metricsRegistered {
		return
	}
	unitFailuresTotal.WithLabelValues(stage).Inc()
}
