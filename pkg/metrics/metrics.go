// Package metrics exposes the Prometheus collectors the spec's performance
// contracts (§4.6 detection latency, §4.13 sync latency, §5 admission
// control queue depth) are measured against.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the collectors used across the satellite's subsystems.
// A single instance is constructed at startup and threaded into every
// component constructor that needs to record something.
type Registry struct {
	DetectionDuration   prometheus.Histogram
	SyncDuration        prometheus.Histogram
	OpportunitiesTotal  prometheus.Counter
	ExecutionsTotal     *prometheus.CounterVec
	TransactionQueueLen prometheus.Gauge
	RiskAlertsTotal     *prometheus.CounterVec
	BridgeAnomalyTotal  *prometheus.CounterVec
}

// NewRegistry creates and registers all collectors against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		DetectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "satellite",
			Subsystem: "arbitrage",
			Name:      "detection_duration_seconds",
			Help:      "Latency of a single detection scan across the configured chain/asset matrix.",
			Buckets:   []float64{.01, .025, .05, .1, .2, .3, .5, 1},
		}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "satellite",
			Subsystem: "sync",
			Name:      "full_sync_duration_seconds",
			Help:      "Latency of one full cross-chain synchronization pass.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5},
		}),
		OpportunitiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "satellite",
			Subsystem: "arbitrage",
			Name:      "opportunities_detected_total",
			Help:      "Count of arbitrage opportunities produced by the detector.",
		}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satellite",
			Subsystem: "portfolio",
			Name:      "executions_total",
			Help:      "Count of coordinated transactions by terminal state.",
		}, []string{"state", "kind"}),
		TransactionQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "satellite",
			Subsystem: "portfolio",
			Name:      "transaction_queue_length",
			Help:      "Current depth of the coordinator's pending transaction queue.",
		}),
		RiskAlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satellite",
			Subsystem: "risk",
			Name:      "alerts_total",
			Help:      "Count of risk alerts by severity level.",
		}, []string{"level"}),
		BridgeAnomalyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satellite",
			Subsystem: "bridge",
			Name:      "anomalies_total",
			Help:      "Count of bridge health anomalies by bridge id.",
		}, []string{"bridge"}),
	}

	reg.MustRegister(
		r.DetectionDuration,
		r.SyncDuration,
		r.OpportunitiesTotal,
		r.ExecutionsTotal,
		r.TransactionQueueLen,
		r.RiskAlertsTotal,
		r.BridgeAnomalyTotal,
	)
	return r
}

// NewTestRegistry returns a Registry bound to a throwaway prometheus
// registry, for use in tests that exercise components without wiring a
// process-wide default registerer.
func NewTestRegistry() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}
