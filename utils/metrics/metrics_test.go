package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarnessMetrics(t *testing.T) {
	metrics := NewHarnessMetrics("test_harness")
	assert.NotNil(t, metrics)

	metrics.Deployments.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Deployments))

	metrics.ScenarioRuns.WithLabelValues(OutcomePassed).Inc()
	metrics.ScenarioRuns.WithLabelValues(OutcomePassed).Inc()
	metrics.ScenarioRuns.WithLabelValues(OutcomeFailed).Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ScenarioRuns.WithLabelValues(OutcomePassed)))

	// Histograms only need to accept observations.
	metrics.ScenarioDuration.Observe(0.3)
	metrics.NodeReadyWait.Observe(1.2)
	assert.NotNil(t, metrics.ScenarioDuration)
}

func TestHarnessMetricsIndependentRegistries(t *testing.T) {
	// Creating two sets with the same namespace must not panic.
	a := NewHarnessMetrics("forkarb")
	b := NewHarnessMetrics("forkarb")

	a.NodeStarts.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.NodeStarts))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.NodeStarts))
}

func TestSummary(t *testing.T) {
	metrics := NewHarnessMetrics("summary")
	metrics.ScenarioRuns.WithLabelValues(OutcomePassed).Add(3)
	metrics.ScenarioRuns.WithLabelValues(OutcomeError).Inc()

	summary, err := metrics.Summary()
	require.NoError(t, err)
	assert.Equal(t, float64(3), summary[OutcomePassed])
	assert.Equal(t, float64(0), summary[OutcomeFailed])
	assert.Equal(t, float64(1), summary[OutcomeError])
}
