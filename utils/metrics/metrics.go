package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Scenario outcomes used as the "outcome" label.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
)

// HarnessMetrics tracks a forkarb run. Each instance owns its registry so
// several runs (or tests) in one process never collide on registration.
type HarnessMetrics struct {
	Registry *prometheus.Registry

	ScenarioRuns     *prometheus.CounterVec
	ScenarioDuration prometheus.Histogram
	Deployments      prometheus.Counter
	DeployGasUsed    prometheus.Histogram
	NodeStarts       prometheus.Counter
	NodeReadyWait    prometheus.Histogram
	RevertsObserved  *prometheus.CounterVec
}

func NewHarnessMetrics(namespace string) *HarnessMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &HarnessMetrics{
		Registry: reg,
		ScenarioRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenario_runs_total",
			Help:      "Scenario runs by outcome",
		}, []string{"outcome"}),
		ScenarioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of a scenario from deploy to assertion",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Deployments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Contracts deployed to the fork",
		}),
		DeployGasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deploy_gas_used",
			Help:      "Gas used by contract creation transactions",
			Buckets:   prometheus.ExponentialBuckets(100000, 2, 8),
		}),
		NodeStarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_starts_total",
			Help:      "Forked nodes started",
		}),
		NodeReadyWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_ready_wait_seconds",
			Help:      "Time until the forked node answered JSON-RPC",
			Buckets:   prometheus.DefBuckets,
		}),
		RevertsObserved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reverts_observed_total",
			Help:      "Revert reasons seen while running scenarios",
		}, []string{"reason"}),
	}
}

// Summary reads the scenario counters back from the registry.
func (m *HarnessMetrics) Summary() (map[string]float64, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}

	out := map[string]float64{
		OutcomePassed: 0,
		OutcomeFailed: 0,
		OutcomeError:  0,
	}
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER || !strings.HasSuffix(family.GetName(), "scenario_runs_total") {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					out[label.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return out, nil
}
